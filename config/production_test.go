package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("JWT_SECRET_KEY", "test-secret-key-for-jwt-signing-32-chars")
	t.Setenv("SMS_PROVIDER_DOMAIN", "mock")
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("LOG_LEVEL", "info")
}

func TestLoadProductionConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TELEGRAM_TIMEOUT_SECONDS", "")
		t.Setenv("CAMPAIGN_SMS_MAX_LENGTH", "")

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)

		assert.Equal(t, 480, cfg.Campaign.SMSMaxLength)
		assert.Equal(t, 10, cfg.Telegram.TimeoutSeconds)
		assert.Equal(t, 10*time.Second, cfg.Telegram.Timeout())
		assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIBaseURL)
	})

	t.Run("telegram timeout is clamped to one second", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TELEGRAM_TIMEOUT_SECONDS", "0")

		cfg, err := LoadProductionConfig()
		require.NoError(t, err)

		assert.Equal(t, 1, cfg.Telegram.TimeoutSeconds)
		assert.Equal(t, time.Second, cfg.Telegram.Timeout())
	})

	t.Run("short jwt secret is rejected", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("JWT_SECRET_KEY", "short")

		_, err := LoadProductionConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
	})
}

func TestTelegramConfigTimeout(t *testing.T) {
	assert.Equal(t, time.Second, TelegramConfig{TimeoutSeconds: -3}.Timeout())
	assert.Equal(t, 7*time.Second, TelegramConfig{TimeoutSeconds: 7}.Timeout())
}

func TestValidateProductionConfig(t *testing.T) {
	valid := func() *ProductionConfig {
		return &ProductionConfig{
			Database: DatabaseConfig{Host: "db", Port: 5432, Name: "tablecast", User: "postgres"},
			Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
			JWT:      JWTConfig{SecretKey: "test-secret-key-for-jwt-signing-32-chars", Issuer: "tablecast"},
			SMS:      SMSConfig{ProviderDomain: "mock"},
			Telegram: TelegramConfig{APIBaseURL: "https://api.telegram.org", TimeoutSeconds: 5},
			Campaign: CampaignConfig{SMSMaxLength: 480, WorkerCount: 2, PreviewSampleSize: 10, PreviewSampleMax: 50},
			Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*ProductionConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*ProductionConfig) {}},
		{
			name:    "real sms provider needs credentials",
			mutate:  func(c *ProductionConfig) { c.SMS.ProviderDomain = "sms.example.com" },
			wantErr: "SMS_API_KEY",
		},
		{
			name:    "worker count must be positive",
			mutate:  func(c *ProductionConfig) { c.Campaign.WorkerCount = 0 },
			wantErr: "CAMPAIGN_WORKER_COUNT",
		},
		{
			name:    "preview sample above max",
			mutate:  func(c *ProductionConfig) { c.Campaign.PreviewSampleSize = 80 },
			wantErr: "CAMPAIGN_PREVIEW_SAMPLE_SIZE",
		},
		{
			name:    "file output needs a path",
			mutate:  func(c *ProductionConfig) { c.Logging.Output = "file" },
			wantErr: "LOG_FILE_PATH",
		},
		{
			name:    "missing bot token is allowed",
			mutate:  func(c *ProductionConfig) { c.Telegram.BotToken = "" },
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TABLECAST_TEST_A=from-file\nTABLECAST_TEST_B=\"quoted\"\n"), 0o600))

	t.Setenv("TABLECAST_TEST_A", "from-env")
	t.Setenv("TABLECAST_TEST_B", "")
	require.NoError(t, os.Unsetenv("TABLECAST_TEST_B"))

	require.NoError(t, loadEnvFile(path))
	t.Cleanup(func() { _ = os.Unsetenv("TABLECAST_TEST_B") })

	assert.Equal(t, "from-env", os.Getenv("TABLECAST_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("TABLECAST_TEST_B"))
	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
}
