package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultConfigDir    = "./configs"
	defaultAPIPort      = 8080
	defaultLogLevel     = "info"
	defaultMQTTPort     = 1883
	defaultMQTTClientID = "hvacautomation"
)

// Env is the process configuration read from the environment
type Env struct {
	HAURL     string
	HAToken   string
	ReadOnly  bool
	ConfigDir string
	APIPort   int
	LogLevel  string
	HistoryDB string
	MQTT      MQTTConfig
	Influx    InfluxConfig
}

// MQTTConfig selects direct broker publishing when Host is set
type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

func (c MQTTConfig) Enabled() bool { return c.Host != "" }

// InfluxConfig enables outcome metrics when URL is set
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// LoadDotEnv loads variables from .env files (default ".env") without overriding the environment
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// LoadEnv reads and validates the environment
func LoadEnv() (*Env, error) {
	env := &Env{
		HAURL:     os.Getenv("HA_URL"),
		HAToken:   os.Getenv("HA_TOKEN"),
		ReadOnly:  os.Getenv("READ_ONLY") == "true",
		ConfigDir: getenv("CONFIG_DIR", defaultConfigDir),
		LogLevel:  getenv("LOG_LEVEL", defaultLogLevel),
		HistoryDB: os.Getenv("HISTORY_DB"),
		MQTT: MQTTConfig{
			Host:     os.Getenv("MQTT_HOST"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			ClientID: getenv("MQTT_CLIENT_ID", defaultMQTTClientID),
		},
		Influx: InfluxConfig{
			URL:    os.Getenv("INFLUX_URL"),
			Token:  os.Getenv("INFLUX_TOKEN"),
			Org:    os.Getenv("INFLUX_ORG"),
			Bucket: os.Getenv("INFLUX_BUCKET"),
		},
	}

	if env.HAURL == "" || env.HAToken == "" {
		return nil, fmt.Errorf("HA_URL and HA_TOKEN environment variables must be set")
	}

	var err error
	if env.APIPort, err = getenvInt("API_PORT", defaultAPIPort); err != nil {
		return nil, err
	}
	if env.MQTT.Port, err = getenvInt("MQTT_PORT", defaultMQTTPort); err != nil {
		return nil, err
	}

	if env.Influx.Enabled() && (env.Influx.Org == "" || env.Influx.Bucket == "") {
		return nil, fmt.Errorf("INFLUX_ORG and INFLUX_BUCKET must be set when INFLUX_URL is set")
	}

	return env, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
