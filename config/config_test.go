package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"gotest.tools/v3/assert"
)

func TestConfig_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	assert.NilError(t, err)
	assert.Equal(t, defaultConfig, *cfg)
}

func TestConfig_LoadFromEnv(t *testing.T) {
	want := defaultConfig
	want.Port = "5050"
	want.Mode = RunModeProd
	want.Namespace = "ranked"
	want.RedisPassword = "hunter2"
	want.ArmDelaySeconds = 10
	want.LogFormat = "json"

	t.Setenv("ARENA_PORT", want.Port)
	t.Setenv("ARENA_MODE", string(want.Mode))
	t.Setenv("ARENA_NAMESPACE", want.Namespace)
	t.Setenv("ARENA_REDIS_PASSWORD", want.RedisPassword)
	t.Setenv("ARENA_ARM_DELAY_SECONDS", "10")
	t.Setenv("ARENA_LOG_FORMAT", want.LogFormat)

	got, err := Load(nil)
	assert.NilError(t, err)
	assert.Equal(t, want, *got)
}

func TestConfig_TracingFromEnv(t *testing.T) {
	t.Setenv("ARENA_TRACE_ENABLED", "true")
	t.Setenv("ARENA_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("ARENA_TRACE_SAMPLE_RATE", "0.25")

	got, err := Load(nil)
	assert.NilError(t, err)
	assert.Assert(t, got.TraceEnabled)
	assert.Equal(t, "collector:4317", got.OTLPEndpoint)
	assert.Equal(t, 0.25, got.TraceSampleRate)
}

func TestConfig_LoadFromFileAndFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "arena.toml")
	assert.NilError(t, os.WriteFile(file, []byte("port = \"6060\"\nstream_buffer = 8\n"), 0o600))
	t.Setenv(EnvConfigFile, file)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	assert.NilError(t, flags.Parse([]string{"--port", "7070"}))

	got, err := Load(flags)
	assert.NilError(t, err)
	assert.Equal(t, "7070", got.Port)
	assert.Equal(t, 8, got.StreamBuffer)
	assert.Equal(t, defaultConfig.Namespace, got.Namespace)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "default should work, its devmode",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "prod without redis password fails",
			mutate:  func(c *Config) { c.Mode = RunModeProd },
			wantErr: true,
		},
		{
			name: "prod with redis password",
			mutate: func(c *Config) {
				c.Mode = RunModeProd
				c.RedisPassword = "foo"
			},
			wantErr: false,
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "staging" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
		{
			name:    "zero arm delay",
			mutate:  func(c *Config) { c.ArmDelaySeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative retry interval",
			mutate:  func(c *Config) { c.RetryIntervalMs = -1 },
			wantErr: true,
		},
		{
			name: "tracing without endpoint",
			mutate: func(c *Config) {
				c.TraceEnabled = true
				c.OTLPEndpoint = ""
			},
			wantErr: true,
		},
		{
			name: "tracing sample rate above one",
			mutate: func(c *Config) {
				c.TraceEnabled = true
				c.TraceSampleRate = 1.5
			},
			wantErr: true,
		},
		{
			name:    "sample rate is ignored while tracing is off",
			mutate:  func(c *Config) { c.TraceSampleRate = 1.5 },
			wantErr: false,
		},
		{
			name:    "empty namespace",
			mutate:  func(c *Config) { c.Namespace = "" },
			wantErr: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Assert(t, err != nil)
			} else {
				assert.NilError(t, err)
			}
		})
	}
}
