package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		MySQL: config.MySQLConfig{DSN: "user:pass@tcp(localhost:3306)/jnd"},
		Redis: config.RedisConfig{Addr: "localhost:6379", Prefix: "project:"},
		Sources: []config.SourceConfig{
			{Name: "s1", URL: "https://example.com/feed", Interval: time.Second, ParserID: "universal"},
		},
	}
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingSources(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = nil

	assert.ErrorIs(t, cfg.Validate(), config.ErrNoSources)
}

func TestValidateRejectsIntervalOutOfRange(t *testing.T) {
	for _, interval := range []time.Duration{100 * time.Millisecond, 5 * time.Second} {
		cfg := validConfig()
		cfg.Sources[0].Interval = interval

		assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidInterval, interval.String())
	}
}

func TestValidateRejectsMissingStores(t *testing.T) {
	cfg := validConfig()
	cfg.MySQL.DSN = ""
	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingMySQLDSN)

	cfg = validConfig()
	cfg.Redis.Addr = ""
	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingRedisAddr)
}

func TestValidateRequiresLLMKeyWhenPredictionEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Predict.Enabled = true

	assert.ErrorIs(t, cfg.Validate(), config.ErrMissingLLMKey)

	cfg.Predict.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JNDVPS_MYSQL_DSN", "user:pass@tcp(localhost:3306)/jnd")

	// No config file and no sources: Load must fail validation, proving
	// defaults alone do not fabricate sources.
	_, err := config.Load("")
	require.ErrorIs(t, err, config.ErrNoSources)
}
