package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"BOT_TOKEN", "LOG_CHANNEL_ID", "START_IMAGE", "JOIN_LINKS", "ADMIN_IDS",
	"TWO_FACTOR_PHONES", "FLOW_TIMEOUT", "SWEEP_INTERVAL", "BATCH_LIMIT",
	"BATCH_PARALLELISM", "BROADCAST_PARALLELISM", "BROADCAST_RATE",
	"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
}

// setEnv clears every variable Load reads, then sets env
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"BOT_TOKEN":      "test_token",
		"LOG_CHANNEL_ID": "-100123",
		"DB_PASSWORD":    "test_db_password",
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		setEnv       bool
		envValue     string
		expected     string
	}{
		{
			name:         "env variable set",
			key:          "TEST_KEY",
			defaultValue: "default",
			setEnv:       true,
			envValue:     "custom",
			expected:     "custom",
		},
		{
			name:         "env variable not set",
			key:          "TEST_KEY_NOT_SET",
			defaultValue: "default",
			setEnv:       false,
			expected:     "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			result := getEnv(tt.key, tt.defaultValue)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetList(t *testing.T) {
	t.Setenv("TEST_LIST", " @one, ,t.me/two ,")
	assert.Equal(t, []string{"@one", "t.me/two"}, getList("TEST_LIST"))

	t.Setenv("TEST_LIST", "")
	assert.Nil(t, getList("TEST_LIST"))
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
		},
	}

	dsn := cfg.DSN()
	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, dsn)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	for _, key := range []string{"BOT_TOKEN", "LOG_CHANNEL_ID", "DB_PASSWORD"} {
		t.Run(key, func(t *testing.T) {
			env := requiredEnv()
			delete(env, key)
			setEnv(t, env)

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_WithDefaults(t *testing.T) {
	setEnv(t, requiredEnv())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "test_token", cfg.BotToken)
	assert.Equal(t, int64(-100123), cfg.LogChannelID)
	assert.Empty(t, cfg.JoinLinks)
	assert.Empty(t, cfg.AdminIDs)
	assert.Equal(t, 300*time.Second, cfg.FlowTimeout)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, BulkConfig{Limit: 1000, Parallelism: 1}, cfg.Batch)
	assert.Equal(t, BulkConfig{Limit: 1000, Parallelism: 4, Rate: 25}, cfg.Broadcast)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "chatagent", cfg.Database.Name)
	assert.Equal(t, "chatagent", cfg.Database.User)
}

func TestLoad_Overrides(t *testing.T) {
	env := requiredEnv()
	env["START_IMAGE"] = "start.jpg"
	env["JOIN_LINKS"] = "@one,@two"
	env["ADMIN_IDS"] = "1, 2"
	env["TWO_FACTOR_PHONES"] = "+15550000000"
	env["FLOW_TIMEOUT"] = "2m"
	env["SWEEP_INTERVAL"] = "5s"
	env["BATCH_LIMIT"] = "50"
	env["BATCH_PARALLELISM"] = "2"
	env["BROADCAST_PARALLELISM"] = "8"
	env["BROADCAST_RATE"] = "0.5"
	setEnv(t, env)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "start.jpg", cfg.StartImage)
	assert.Equal(t, []string{"@one", "@two"}, cfg.JoinLinks)
	assert.Equal(t, []int64{1, 2}, cfg.AdminIDs)
	assert.Equal(t, []string{"+15550000000"}, cfg.TwoFactorPhones)
	assert.Equal(t, 2*time.Minute, cfg.FlowTimeout)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, BulkConfig{Limit: 50, Parallelism: 2}, cfg.Batch)
	assert.Equal(t, BulkConfig{Limit: 50, Parallelism: 8, Rate: 0.5}, cfg.Broadcast)
}

func TestLoad_Malformed(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "LOG_CHANNEL_ID", value: "channel"},
		{key: "ADMIN_IDS", value: "1,two"},
		{key: "FLOW_TIMEOUT", value: "300"},
		{key: "BATCH_LIMIT", value: "many"},
		{key: "BROADCAST_RATE", value: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			env := requiredEnv()
			env[tt.key] = tt.value
			setEnv(t, env)

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_NonPositiveTimeout(t *testing.T) {
	env := requiredEnv()
	env["FLOW_TIMEOUT"] = "0s"
	setEnv(t, env)

	_, err := Load()
	assert.ErrorContains(t, err, "FLOW_TIMEOUT")
}
