package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hvacautomation/internal/api"
	"hvacautomation/internal/automation"
	"hvacautomation/internal/clock"
	"hvacautomation/internal/config"
	"hvacautomation/internal/dispatch"
	"hvacautomation/internal/ha"
	"hvacautomation/internal/history"
	"hvacautomation/internal/metrics"
	"hvacautomation/internal/mqtt"
	"hvacautomation/internal/scheduler"
	"hvacautomation/pkg/plugin"

	// Rule kinds register themselves on import
	_ "hvacautomation/internal/plugins/bypass"
	_ "hvacautomation/internal/plugins/coolingpower"
	_ "hvacautomation/internal/plugins/fanmode"
	_ "hvacautomation/internal/plugins/switchvalue"
	_ "hvacautomation/internal/plugins/ventilation"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// A missing .env is fine; the environment may be set by the container
	dotEnvErr := config.LoadDotEnv()

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(env.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if dotEnvErr != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	logger.Info("Starting HVAC automation",
		zap.String("url", env.HAURL),
		zap.Bool("read_only", env.ReadOnly),
		zap.String("config_dir", env.ConfigDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create HA client
	client := ha.NewClient(env.HAURL, env.HAToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	dispatcher := dispatch.NewDispatcher(client, logger, env.ReadOnly)

	publisher, closePublisher := newPublisher(env, client, logger)
	defer closePublisher()

	store, closeStore := newHistoryStore(ctx, env, client, logger)
	defer closeStore()

	recorder, closeRecorder := newRecorder(ctx, env, logger)
	defer closeRecorder()

	runner := automation.NewRunner(logger, clock.NewRealClock(), recorder)
	pluginCtx := plugin.NewContext(client, dispatcher, publisher, store, logger)

	// Load and build the configured rules
	loader := config.NewLoader(env.ConfigDir, logger)
	rulesConfig, err := loader.LoadRules()
	if err != nil {
		logger.Fatal("Failed to load rules", zap.Error(err))
	}

	sched := scheduler.New(client, runner, logger)
	for _, rc := range rulesConfig.Rules {
		params := rc.Params
		rule, err := plugin.Build(pluginCtx, rc.Kind, rc.Name, plugin.NodeDecoder(&params))
		if err != nil {
			logger.Fatal("Failed to build rule", zap.String("rule", rc.Name), zap.Error(err))
		}
		if err := sched.Add(rule, scheduler.Trigger{Interval: rc.Interval, OnChange: rc.OnChange}); err != nil {
			logger.Fatal("Failed to schedule rule", zap.String("rule", rc.Name), zap.Error(err))
		}
		logger.Info("Rule configured",
			zap.String("rule", rc.Name),
			zap.String("kind", rc.Kind),
			zap.Duration("interval", rc.Interval),
			zap.Bool("on_change", rc.OnChange))
	}

	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Start HTTP API server
	apiServer := api.NewServer(client, sched, runner, plugin.Default(), pluginCtx, logger, env.APIPort)
	if err := apiServer.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}
	defer func() {
		if err := apiServer.Stop(); err != nil {
			logger.Error("Failed to stop API server", zap.Error(err))
		}
	}()

	if env.ReadOnly {
		logger.Info("Running in READ-ONLY mode - no changes will be made to Home Assistant")
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// newPublisher sends flow values straight to the broker when MQTT is configured,
// through Home Assistant's mqtt.publish otherwise
func newPublisher(env *config.Env, client ha.HAClient, logger *zap.Logger) (dispatch.Publisher, func()) {
	if env.ReadOnly {
		return dispatch.NewReadOnlyPublisher(logger), func() {}
	}
	if !env.MQTT.Enabled() {
		return dispatch.NewHAPublisher(client), func() {}
	}

	mqttClient, err := mqtt.Connect(env.MQTT, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	return mqttClient, mqttClient.Close
}

// newHistoryStore picks where the fan mode history lives. Without a database
// the input_text helper is used, except in read-only mode where it stays in memory.
func newHistoryStore(ctx context.Context, env *config.Env, client ha.HAClient, logger *zap.Logger) (history.Store, func()) {
	if env.HistoryDB != "" {
		store, err := history.OpenSQLiteStore(ctx, env.HistoryDB, history.DefaultCapacity)
		if err != nil {
			logger.Fatal("Failed to open history database", zap.Error(err))
		}
		logger.Info("Keeping fan mode history in SQLite", zap.String("path", env.HistoryDB))
		return store, func() { store.Close() }
	}
	if env.ReadOnly {
		return history.NewMemoryStore(history.DefaultCapacity), func() {}
	}
	return history.NewEntityStore(client, history.DefaultCapacity), func() {}
}

func newRecorder(ctx context.Context, env *config.Env, logger *zap.Logger) (automation.Recorder, func()) {
	if !env.Influx.Enabled() {
		return nil, func() {}
	}

	recorder, err := metrics.Connect(ctx, env.Influx, logger)
	if err != nil {
		// Metrics are optional; run without them
		logger.Warn("InfluxDB unavailable, rule outcomes will not be recorded", zap.Error(err))
		return nil, func() {}
	}
	return recorder, recorder.Close
}
