package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())

	opts := cfg.LobbyOptions()
	assert.Equal(t, 8*time.Second, opts.ReviewDelay)
	assert.Equal(t, 1, opts.PointsPerCorrect)
	assert.True(t, opts.LateJoinScoring)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(c *Config){
		"port":                 func(c *Config) { c.Port = 70000 },
		"log level":            func(c *Config) { c.LogLevel = "loud" },
		"inverted bounds":      func(c *Config) { c.MinRoundSeconds, c.MaxRoundSeconds = 30, 10 },
		"no rounds":            func(c *Config) { c.MaxRounds = 0 },
		"no review delay":      func(c *Config) { c.ReviewDelay = 0 },
		"unknown catalog":      func(c *Config) { c.Catalog = "s3" },
		"dir without path":     func(c *Config) { c.Catalog = CatalogDir },
		"postgres without dsn": func(c *Config) { c.Catalog = CatalogPostgres },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBindReadsEnvironment(t *testing.T) {
	t.Setenv("QUIZ_PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("QUIZ_REVIEW_DELAY", "3s")
	t.Setenv("QUIZ_LATE_JOIN_SCORING", "false")

	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterServerFlags(fs, &cfg)
	RegisterStorageFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--max-rounds=10"}))
	require.NoError(t, Bind(fs))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "redis:6379", cfg.RedisAddr, "bare variable names are honoured")
	assert.Equal(t, 3*time.Second, cfg.ReviewDelay)
	assert.False(t, cfg.LateJoinScoring)
	assert.Equal(t, 10, cfg.MaxRounds)
}

func TestFlagsWinOverEnvironment(t *testing.T) {
	t.Setenv("QUIZ_PORT", "9090")

	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterServerFlags(fs, &cfg)
	require.NoError(t, fs.Parse([]string{"--port=7070"}))
	require.NoError(t, Bind(fs))

	assert.Equal(t, 7070, cfg.Port)
}
