/**
 * Configuration for the Box fixer
 *
 * Loads settings from a yaml config file, FIXER_* environment variables and
 * command-line flags (bound by the cmd layer), in that order of increasing
 * precedence. Defaults match the operational values the migration ran with.
 *
 * Author: box-fixer team
 */

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	// Database is the path to the sqlite database file.
	Database string `mapstructure:"database"`

	// JWTSettingsFile is the Box JWT app settings JSON.
	JWTSettingsFile string `mapstructure:"jwt_settings_file"`

	// RootFolderID is the service-account folder all copies land under.
	RootFolderID string `mapstructure:"root_folder_id"`

	Fix FixConfig `mapstructure:"fix"`
	API APIConfig `mapstructure:"api"`
	Log LogConfig `mapstructure:"log"`
	Web WebConfig `mapstructure:"web"`
}

// FixConfig contains worker-pool settings.
type FixConfig struct {
	// Workers is the number of parallel fix workers.
	Workers int `mapstructure:"workers"`

	// RetryAttempts bounds every remote protocol step.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// RetryBaseDelay is multiplied by the attempt number between retries.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`

	// TokenRefreshAfter is the cached-credential age that triggers a
	// re-mint on acquisition.
	TokenRefreshAfter time.Duration `mapstructure:"token_refresh_after"`

	// PollInterval is the cooperative-shutdown poll period.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// ShutdownGrace is the pause between shutdown tiers so the next tier
	// can drain.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// APIConfig contains remote service client settings.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	TokenURL        string        `mapstructure:"token_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSec int           `mapstructure:"rate_limit"`
	BurstSize       int           `mapstructure:"burst_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or pretty
	File   string `mapstructure:"file"`   // empty = stdout
}

// WebConfig contains admin web server settings.
type WebConfig struct {
	Listen       string `mapstructure:"listen"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

// Load reads configuration from the given file (or the default search path
// when empty) and returns the resolved Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".box-fixer"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("fixer")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FIXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "fixer.db")

	v.SetDefault("fix.workers", 1)
	v.SetDefault("fix.retry_attempts", 10)
	v.SetDefault("fix.retry_base_delay", 3*time.Second)
	v.SetDefault("fix.token_refresh_after", 45*time.Minute)
	v.SetDefault("fix.poll_interval", 10*time.Millisecond)
	v.SetDefault("fix.shutdown_grace", time.Second)

	v.SetDefault("api.base_url", "https://api.box.com/2.0")
	v.SetDefault("api.token_url", "https://api.box.com/oauth2/token")
	v.SetDefault("api.request_timeout", 60*time.Second)
	v.SetDefault("api.rate_limit", 10)
	v.SetDefault("api.burst_size", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("web.listen", ":8080")
	v.SetDefault("web.allow_origins", "*")
}

// Validate checks settings required by every mode.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Fix.Workers < 1 {
		return fmt.Errorf("fix.workers must be at least 1")
	}
	if c.Fix.RetryAttempts < 1 {
		return fmt.Errorf("fix.retry_attempts must be at least 1")
	}
	return nil
}
