// Package metrics writes rule results to InfluxDB so decisions can be graphed
// next to the sensor history.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/config"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

// Measurement is the InfluxDB measurement every result is written to
const Measurement = "rule_outcome"

const (
	defaultPingTimeout   = 5 * time.Second
	defaultBatchSize     = 50
	defaultFlushInterval = 10 * time.Second
)

var ErrUnhealthy = errors.New("influxdb server not healthy")

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder is an automation.Recorder backed by the non-blocking write API
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

// Connect pings the server and starts a batching writer for org/bucket
func Connect(ctx context.Context, cfg config.InfluxConfig, logger *zap.Logger) (*InfluxRecorder, error) {
	logger = logger.Named("metrics")

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(uint(defaultFlushInterval.Milliseconds())),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping influxdb: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrUnhealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			logger.Warn("InfluxDB write failed", zap.Error(err))
		}
	}()

	logger.Info("Writing rule outcomes to InfluxDB",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket))

	return &InfluxRecorder{client: client, writer: writeAPI, logger: logger}, nil
}

// Record queues one point; delivery errors surface on the write API error channel
func (r *InfluxRecorder) Record(result automation.Result) {
	r.writer.WritePoint(NewPoint(result))
}

// Close flushes pending points and closes the client
func (r *InfluxRecorder) Close() {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
}

// NewPoint converts a result into a point tagged by rule, kind and action
func NewPoint(result automation.Result) *write.Point {
	tags := map[string]string{
		"rule": result.Rule,
		"kind": result.Kind,
	}
	fields := map[string]interface{}{
		"success": result.Error == "",
	}

	if result.Outcome != nil {
		tags["action"] = string(result.Outcome.Action)
		fields["duration_ms"] = float64(result.Outcome.Duration.Microseconds()) / 1000
		if result.Outcome.Decision != nil {
			fields["decision"] = fmt.Sprint(result.Outcome.Decision)
		}
		if value, ok := numeric(result.Outcome.Decision); ok {
			fields["value"] = value
		}
	}
	if result.Error != "" {
		fields["error"] = result.Error
	}

	return write.NewPoint(Measurement, tags, fields, result.Time)
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
