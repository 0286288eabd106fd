package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnvVars clears all qzWhatNext-related environment variables.
func clearEnvVars() {
	envVars := []string{
		"APP_ENV", "QZWN_LOG_LEVEL", "QZWN_USER_ID",
		"DATABASE_URL", "QZWN_SQLITE_PATH", "QZWN_LOCAL_MODE",
		"REDIS_URL", "RABBITMQ_URL",
		"HORIZON_DAYS", "SCHEDULING_GRANULARITY", "DURATION_DEFAULT",
		"CONFIDENCE_THRESHOLD", "TIER_CHANGE_CONFIRM_THRESHOLD", "IMPACT_TIER_THRESHOLD",
		"INFERENCE_TIMEOUT", "AVAILABILITY_SNAPSHOT_MAX_AGE", "REBUILD_LOCK_TTL",
		"SCHEDULE_TICK_INTERVAL", "SYNC_INTERVAL",
		"OPENAI_API_KEY", "QZWN_INFERENCE_MODEL",
		"CALENDAR_ID", "GOOGLE_OAUTH_CLIENT_ID", "GOOGLE_OAUTH_CLIENT_SECRET",
		"GOOGLE_OAUTH_TOKEN_FILE",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LocalMode)

	assert.Equal(t, 7, cfg.HorizonDays)
	assert.Equal(t, 30*time.Minute, cfg.SchedulingGranularity)
	assert.Equal(t, 30*time.Minute, cfg.DurationDefault)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 0.8, cfg.TierChangeConfirmThreshold)
	assert.Equal(t, 0.7, cfg.ImpactTierThreshold)
	assert.Equal(t, 10*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.AvailabilitySnapshotMaxAge)
	assert.Equal(t, 2*time.Minute, cfg.RebuildLockTTL)

	assert.Equal(t, 15*time.Minute, cfg.ScheduleTickInterval)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)

	assert.Equal(t, "primary", cfg.CalendarID)
	assert.Equal(t, "token.json", cfg.GoogleOAuthTokenFile)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("APP_ENV", "production")
	os.Setenv("HORIZON_DAYS", "30")
	os.Setenv("SCHEDULING_GRANULARITY", "15m")
	os.Setenv("QZWN_LOCAL_MODE", "true")
	os.Setenv("SYNC_INTERVAL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 30, cfg.HorizonDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Horizon())
	assert.Equal(t, 15*time.Minute, cfg.SchedulingGranularity)
	assert.True(t, cfg.LocalMode)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
}

func TestLoad_RejectsInvalidHorizon(t *testing.T) {
	clearEnvVars()
	defer clearEnvVars()

	os.Setenv("HORIZON_DAYS", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HORIZON_DAYS")
}
