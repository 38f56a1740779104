package server

import (
	"strings"
	"time"

	"github.com/fnproject/httpecho/api/common"
	"github.com/spf13/viper"
)

// Environment variables read at startup.
const (
	EnvLogFormat       = "LOG_FORMAT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvPort            = "PORT"
	EnvTerseResponse   = "TERSE_RESPONSE"
	EnvMetricsPort     = "METRICS_PORT"
	EnvH2C             = "H2C"
	EnvRequestIDHeader = "REQUEST_ID_HEADER"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

// Defaults for the environment.
const (
	DefaultLogFormat       = "text"
	DefaultLogLevel        = "debug"
	DefaultPort            = 9080
	DefaultRequestIDHeader = "X-Request-Id"
	DefaultShutdownTimeout = 10 * time.Second

	maxPort = 65535
)

// Config is read once at startup and never changed afterwards.
type Config struct {
	// LogFormat "json" selects one JSON object per line, anything else the
	// human readable format.
	LogFormat string
	LogLevel  string
	Port      int
	// Terse restricts both renderers to the method and url.
	Terse bool
	// MetricsPort serves prometheus /metrics on a separate admin listener,
	// 0 disables it.
	MetricsPort     int
	H2C             bool
	RequestIDHeader string
	ShutdownTimeout time.Duration
}

// DefaultConfig is the configuration with an empty environment.
func DefaultConfig() Config {
	return Config{
		LogFormat:       DefaultLogFormat,
		LogLevel:        DefaultLogLevel,
		Port:            DefaultPort,
		H2C:             true,
		RequestIDHeader: DefaultRequestIDHeader,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// ConfigFromEnv reads the process environment. Bad values never fail, they
// fall back to the defaults.
func ConfigFromEnv() Config {
	v := viper.New()
	v.AutomaticEnv()
	return configFrom(v)
}

func configFrom(v *viper.Viper) Config {
	def := DefaultConfig()
	v.SetDefault(EnvLogFormat, def.LogFormat)
	v.SetDefault(EnvLogLevel, def.LogLevel)
	v.SetDefault(EnvRequestIDHeader, def.RequestIDHeader)
	v.SetDefault(EnvH2C, "true")

	cfg := Config{
		LogFormat:       v.GetString(EnvLogFormat),
		LogLevel:        v.GetString(EnvLogLevel),
		Port:            parsePort(EnvPort, v.GetString(EnvPort), def.Port),
		Terse:           v.GetString(EnvTerseResponse) == "true",
		H2C:             !strings.EqualFold(v.GetString(EnvH2C), "false"),
		RequestIDHeader: v.GetString(EnvRequestIDHeader),
		ShutdownTimeout: def.ShutdownTimeout,
	}
	if m := v.GetString(EnvMetricsPort); m != "" {
		cfg.MetricsPort = parsePort(EnvMetricsPort, m, 0)
	}
	if d := v.GetString(EnvShutdownTimeout); d != "" {
		cfg.ShutdownTimeout = parseDuration(d, def.ShutdownTimeout)
	}
	return cfg
}

func parsePort(key, value string, fallback int) int {
	p := common.ParsePositiveInt(key, value, fallback)
	if p > maxPort {
		return fallback
	}
	return p
}

// parseDuration accepts a Go duration or a plain number of seconds.
func parseDuration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if s := common.ParsePositiveInt(EnvShutdownTimeout, value, -1); s > 0 {
		return time.Duration(s) * time.Second
	}
	return fallback
}
