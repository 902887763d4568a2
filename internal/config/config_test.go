package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, 24*time.Hour, cfg.ReminderLead)
	assert.Equal(t, 15*time.Minute, cfg.ImminentLead)
	assert.Equal(t, 100, cfg.SweepBatchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CURRENCY", "INR")
	t.Setenv("REMINDER_LEAD", "12h")
	t.Setenv("SWEEP_BATCH_SIZE", "25")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "INR", cfg.Currency)
	assert.Equal(t, 12*time.Hour, cfg.ReminderLead)
	assert.Equal(t, 25, cfg.SweepBatchSize)
	assert.True(t, cfg.UseMemoryQueue)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("REMINDER_LEAD", "soon")
	t.Setenv("SWEEP_BATCH_SIZE", "many")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.ReminderLead)
	assert.Equal(t, 100, cfg.SweepBatchSize)
}
