package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/api"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/config"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/logger"
	"github.com/toshimitsu-m-kamei-box/box-fixer-for-review/internal/state"
)

// openManager opens the database, creating the schema when needed. Most
// commands require the database file to already exist; init-db passes
// allowCreate.
func openManager(cfg *config.Config, allowCreate bool) (*state.Manager, error) {
	if !allowCreate {
		if _, err := os.Stat(cfg.Database); err != nil {
			return nil, fmt.Errorf("database file %s does not exist (run 'fixer init-db' first)", cfg.Database)
		}
	}
	return state.NewManager(state.DefaultDBConfig(cfg.Database))
}

// newClient builds the remote API client from the JWT settings file.
func newClient(cfg *config.Config, log *logger.Logger) (*api.Client, error) {
	if cfg.JWTSettingsFile == "" {
		return nil, fmt.Errorf("jwt settings file is required (--jwt-settings or jwt_settings_file)")
	}
	auth, err := api.NewAuthManager(cfg.JWTSettingsFile, cfg.API.TokenURL, nil, log)
	if err != nil {
		return nil, err
	}
	return api.NewClient(auth, &api.ClientConfig{
		BaseURL:        cfg.API.BaseURL,
		RequestTimeout: cfg.API.RequestTimeout,
		RateLimiter: &api.RateLimiterConfig{
			RateLimit: cfg.API.RateLimitPerSec,
			BurstSize: cfg.API.BurstSize,
		},
	}, log), nil
}

// checkCreatable verifies the database path's directory is writable before
// sqlite tries to create the file.
func checkCreatable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s does not exist", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe, err := os.CreateTemp(dir, ".fixer-probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable", dir)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}
