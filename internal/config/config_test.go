package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "library", cfg.Database.DBName)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL())
	assert.True(t, decimal.NewFromInt(5).Equal(cfg.Fines.DailyRate))
	assert.True(t, cfg.Fines.DamageFee.IsZero())
	assert.Equal(t, 30, cfg.Fines.GracePeriodDays)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=password dbname=library sslmode=disable", cfg.Database.GetDSN())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "PGX")
	t.Setenv("DATABASE_HOST", "db.internal")
	t.Setenv("FINES_DAILYRATE", "2.505")
	t.Setenv("FINES_LOSSFEE", "40")
	t.Setenv("AUTH_TOKENTTLHOURS", "2")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverPgx, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, decimal.RequireFromString("2.51").Equal(cfg.Fines.DailyRate), "got %s", cfg.Fines.DailyRate)
	assert.True(t, decimal.NewFromInt(40).Equal(cfg.Fines.LossFee))
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL())
}

func TestLoadConfigKeepsZeroDailyRate(t *testing.T) {
	t.Setenv("FINES_DAILYRATE", "0")
	t.Setenv("FINES_GRACEPERIODDAYS", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Fines.DailyRate.IsZero(), "got %s", cfg.Fines.DailyRate)
	assert.Equal(t, 0, cfg.Fines.GracePeriodDays)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\nfines:\n  graceperioddays: 14\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Fines.GracePeriodDays)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"UnknownDriver", "DATABASE_DRIVER", "mysql"},
		{"MalformedRate", "FINES_DAILYRATE", "five"},
		{"NegativeFee", "FINES_DAMAGEFEE", "-1"},
		{"NegativeGrace", "FINES_GRACEPERIODDAYS", "-3"},
		{"ZeroTTL", "AUTH_TOKENTTLHOURS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
