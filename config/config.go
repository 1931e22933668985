// Package config gathers settings from .env files, the environment and
// command line flags.
package config

import (
	"os"
	"strconv"

	"github.com/bwesterb/go-wattsup/sink"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the destinations records are forwarded to. A nil entry is
// not configured.
type Config struct {
	MQTT       *sink.MQTTConfig
	ClickHouse *sink.ClickHouseConfig
}

// Load reads .env, if there is one, and the environment.
func Load() *Config {
	_ = godotenv.Load()

	var ret Config
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		ret.MQTT = &sink.MQTTConfig{
			Broker:   broker,
			ClientID: getEnv("MQTT_CLIENT_ID", "wattsup"),
			Username: getEnv("MQTT_USERNAME", ""),
			Password: getEnv("MQTT_PASSWORD", ""),
			Topic:    getEnv("MQTT_TOPIC", "wattsup/{device_id}/reading"),
			QoS:      byte(getEnvInt("MQTT_QOS", 1)),
		}
	}
	if addr := os.Getenv("CLICKHOUSE_ADDR"); addr != "" {
		ret.ClickHouse = &sink.ClickHouseConfig{
			Addr:     addr,
			Database: getEnv("CLICKHOUSE_DB", "wattsup"),
			Username: getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASS", ""),
		}
	}
	return &ret
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

// NewLogger returns the logger every binary writes its diagnostics to.
func NewLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	l.Level = logrus.InfoLevel
	if verbose {
		l.Level = logrus.DebugLevel
	}
	return l
}
