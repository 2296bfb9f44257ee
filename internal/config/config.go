package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Supported values for Database.Driver
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Fines    FinesConfig
	Log      LogConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	Username     string
	Password     string
	DBName       string
	SSLMode      string
	TestDBName   string // Separate database for testing
	MaxOpenConns int
	MaxIdleConns int
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret     string
	TokenTTLHours int
	// Admin account created at startup when it does not exist yet
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// TokenTTL returns the lifetime of issued session tokens
func (c *AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// FinesConfig holds the fine policy
type FinesConfig struct {
	DailyRate       decimal.Decimal
	DamageFee       decimal.Decimal
	LossFee         decimal.Decimal
	GracePeriodDays int
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "library")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.testdbname", "library_test")
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)

	v.SetDefault("auth.jwtsecret", "your-secret-key-here")
	v.SetDefault("auth.tokenttlhours", 24)
	v.SetDefault("auth.adminemail", "")
	v.SetDefault("auth.adminpassword", "")
	v.SetDefault("auth.adminname", "Administrator")

	v.SetDefault("fines.dailyrate", "5.00")
	v.SetDefault("fines.damagefee", "0")
	v.SetDefault("fines.lossfee", "0")
	v.SetDefault("fines.graceperioddays", 30)

	v.SetDefault("log.level", "info")
}

// LoadConfig loads the configuration from defaults, an optional config file
// named by CONFIG_FILE and environment variables such as DATABASE_HOST
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			Host:         v.GetString("database.host"),
			Port:         v.GetInt("database.port"),
			Username:     v.GetString("database.username"),
			Password:     v.GetString("database.password"),
			DBName:       v.GetString("database.dbname"),
			SSLMode:      v.GetString("database.sslmode"),
			TestDBName:   v.GetString("database.testdbname"),
			MaxOpenConns: v.GetInt("database.maxopenconns"),
			MaxIdleConns: v.GetInt("database.maxidleconns"),
		},
		Auth: AuthConfig{
			JWTSecret:     v.GetString("auth.jwtsecret"),
			TokenTTLHours: v.GetInt("auth.tokenttlhours"),
			AdminEmail:    v.GetString("auth.adminemail"),
			AdminPassword: v.GetString("auth.adminpassword"),
			AdminName:     v.GetString("auth.adminname"),
		},
		Fines: FinesConfig{
			GracePeriodDays: v.GetInt("fines.graceperioddays"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverPgx, DriverMemory:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	amounts := []struct {
		key  string
		dest *decimal.Decimal
	}{
		{"fines.dailyrate", &cfg.Fines.DailyRate},
		{"fines.damagefee", &cfg.Fines.DamageFee},
		{"fines.lossfee", &cfg.Fines.LossFee},
	}
	for _, a := range amounts {
		d, err := decimal.NewFromString(v.GetString(a.key))
		if err != nil {
			return nil, fmt.Errorf("invalid amount for %s: %w", a.key, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("%s must not be negative", a.key)
		}
		*a.dest = d.Round(2)
	}

	if cfg.Fines.GracePeriodDays < 0 {
		return nil, fmt.Errorf("fines.graceperioddays must not be negative")
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		return nil, fmt.Errorf("auth.tokenttlhours must be positive")
	}

	return cfg, nil
}
