// Package config loads the arena configuration from ARENA_* environment variables, an optional config
// file and command line flags, in increasing order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type RunMode string

const (
	RunModeDev  RunMode = "development"
	RunModeProd RunMode = "production"

	EnvPrefix     = "ARENA"
	EnvConfigFile = "ARENA_CONFIG_FILE"

	DefaultLogLevel = "info"
)

// Config keys. The environment variable of a key is ARENA_ followed by the upper-cased key.
const (
	KeyPort             = "port"
	KeyMode             = "mode"
	KeyNamespace        = "namespace"
	KeyRedisAddress     = "redis_address"
	KeyRedisPassword    = "redis_password"
	KeyLogLevel         = "log_level"
	KeyLogFormat        = "log_format"
	KeyArmDelaySeconds  = "arm_delay_seconds"
	KeyKeepAliveSeconds = "keep_alive_seconds"
	KeyRetryIntervalMs  = "retry_interval_ms"
	KeyStreamBuffer     = "stream_buffer"
	KeyCORSAllowOrigins = "cors_allow_origins"
	KeyTraceEnabled     = "trace_enabled"
	KeyOTLPEndpoint     = "otlp_endpoint"
	KeyTraceSampleRate  = "trace_sample_rate"
)

type Config struct {
	Port             string  `mapstructure:"port"`
	Mode             RunMode `mapstructure:"mode"`
	Namespace        string  `mapstructure:"namespace"`
	RedisAddress     string  `mapstructure:"redis_address"`
	RedisPassword    string  `mapstructure:"redis_password"`
	LogLevel         string  `mapstructure:"log_level"`
	LogFormat        string  `mapstructure:"log_format"`
	ArmDelaySeconds  int     `mapstructure:"arm_delay_seconds"`
	KeepAliveSeconds int     `mapstructure:"keep_alive_seconds"`
	RetryIntervalMs  int     `mapstructure:"retry_interval_ms"`
	StreamBuffer     int     `mapstructure:"stream_buffer"`
	CORSAllowOrigins string  `mapstructure:"cors_allow_origins"`
	TraceEnabled     bool    `mapstructure:"trace_enabled"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	TraceSampleRate  float64 `mapstructure:"trace_sample_rate"`
}

var defaultConfig = Config{
	Port:             "4040",
	Mode:             RunModeDev,
	Namespace:        "arena",
	RedisAddress:     "localhost:6379",
	RedisPassword:    "",
	LogLevel:         DefaultLogLevel,
	LogFormat:        "pretty",
	ArmDelaySeconds:  5,
	KeepAliveSeconds: 30,
	RetryIntervalMs:  1000,
	StreamBuffer:     64,
	CORSAllowOrigins: "*",
	TraceEnabled:     false,
	OTLPEndpoint:     "localhost:4317",
	TraceSampleRate:  1.0,
}

func Default() Config {
	return defaultConfig
}

// Load reads the configuration. flags may be nil; only flags that were set on the command line
// override the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "failed to read config file %q", file)
		}
	}

	if flags != nil {
		var err error
		flags.VisitAll(func(f *pflag.Flag) {
			if err != nil || !f.Changed {
				return
			}
			err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if err != nil {
			return nil, eris.Wrap(err, "failed to bind flags")
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func defaults() map[string]any {
	return map[string]any{
		KeyPort:             defaultConfig.Port,
		KeyMode:             string(defaultConfig.Mode),
		KeyNamespace:        defaultConfig.Namespace,
		KeyRedisAddress:     defaultConfig.RedisAddress,
		KeyRedisPassword:    defaultConfig.RedisPassword,
		KeyLogLevel:         defaultConfig.LogLevel,
		KeyLogFormat:        defaultConfig.LogFormat,
		KeyArmDelaySeconds:  defaultConfig.ArmDelaySeconds,
		KeyKeepAliveSeconds: defaultConfig.KeepAliveSeconds,
		KeyRetryIntervalMs:  defaultConfig.RetryIntervalMs,
		KeyStreamBuffer:     defaultConfig.StreamBuffer,
		KeyCORSAllowOrigins: defaultConfig.CORSAllowOrigins,
		KeyTraceEnabled:     defaultConfig.TraceEnabled,
		KeyOTLPEndpoint:     defaultConfig.OTLPEndpoint,
		KeyTraceSampleRate:  defaultConfig.TraceSampleRate,
	}
}

// Validate checks the configuration. Production mode requires a redis password.
func (c *Config) Validate() error {
	if c.Mode != RunModeDev && c.Mode != RunModeProd {
		return eris.Errorf("mode must be %q or %q, got %q", RunModeDev, RunModeProd, c.Mode)
	}
	if c.Port == "" {
		return eris.New("port must not be empty")
	}
	if c.Namespace == "" {
		return eris.New("namespace must not be empty")
	}
	if c.RedisAddress == "" {
		return eris.New("redis address must not be empty")
	}
	if c.Mode == RunModeProd && c.RedisPassword == "" {
		return eris.New("redis password is required in production mode")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return eris.Wrapf(err, "invalid log level %q", c.LogLevel)
	}
	if c.LogFormat != "pretty" && c.LogFormat != "json" {
		return eris.Errorf("log format must be pretty or json, got %q", c.LogFormat)
	}
	if c.ArmDelaySeconds <= 0 || c.KeepAliveSeconds <= 0 || c.RetryIntervalMs <= 0 {
		return eris.New("arm delay, keep alive and retry interval must be positive")
	}
	if c.StreamBuffer <= 0 {
		return eris.New("stream buffer must be positive")
	}
	if c.TraceEnabled {
		if c.OTLPEndpoint == "" {
			return eris.New("OTLP endpoint cannot be empty when tracing is enabled")
		}
		if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
			return eris.New("trace sample rate must be between 0.0 and 1.0")
		}
	}
	return nil
}

func (c *Config) ArmDelay() time.Duration {
	return time.Duration(c.ArmDelaySeconds) * time.Second
}

func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

// RegisterFlags adds a flag for every key to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("port", defaultConfig.Port, "HTTP port")
	flags.String("mode", string(defaultConfig.Mode), "run mode (development|production)")
	flags.String("namespace", defaultConfig.Namespace, "redis key namespace")
	flags.String("redis-address", defaultConfig.RedisAddress, "redis address")
	flags.String("log-level", defaultConfig.LogLevel, "log level")
	flags.String("log-format", defaultConfig.LogFormat, "log format (pretty|json)")
	flags.Int("arm-delay-seconds", defaultConfig.ArmDelaySeconds, "countdown between a full roster and the start")
	flags.Int("keep-alive-seconds", defaultConfig.KeepAliveSeconds, "idle time before a stream heartbeat")
	flags.Int("retry-interval-ms", defaultConfig.RetryIntervalMs, "delay before a failed boundary is retried")
	flags.Int("stream-buffer", defaultConfig.StreamBuffer, "events a stream may fall behind before it is dropped")
	flags.String("cors-allow-origins", defaultConfig.CORSAllowOrigins, "comma separated CORS origins")
	flags.Bool("trace-enabled", defaultConfig.TraceEnabled, "export scheduler traces over OTLP")
	flags.String("otlp-endpoint", defaultConfig.OTLPEndpoint, "OTLP gRPC collector address")
	flags.Float64("trace-sample-rate", defaultConfig.TraceSampleRate, "fraction of traces sampled (0.0 to 1.0)")
}
