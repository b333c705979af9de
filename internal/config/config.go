// Package config loads nasguard's runtime configuration from a .env
// file and the process environment, and can watch the .env file and
// hand each reloaded Config to a callback.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is nasguard's full runtime configuration.
type Config struct {
	ApplianceBaseURL string
	ApplianceToken   string
	DataDir          string
	ListenAddr       string
	APIToken         string
	PollInterval     time.Duration
	LogLevel         string
}

func defaults() Config {
	return Config{
		ApplianceBaseURL: "https://localhost:5001",
		DataDir:          "./data",
		ListenAddr:       ":8420",
		PollInterval:     5 * time.Minute,
		LogLevel:         "info",
	}
}

// Load reads envPath (if present; a missing .env file is not an
// error) into the process environment, then builds a Config from
// environment variables, applying defaults for anything unset.
func Load(envPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}

	cfg := defaults()

	if v := os.Getenv("NASGUARD_APPLIANCE_BASE_URL"); v != "" {
		cfg.ApplianceBaseURL = v
	}
	if v := os.Getenv("NASGUARD_APPLIANCE_TOKEN"); v != "" {
		cfg.ApplianceToken = v
	}
	if v := os.Getenv("NASGUARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NASGUARD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("NASGUARD_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("NASGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NASGUARD_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: NASGUARD_POLL_INTERVAL=%q: %w", v, err)
		}
		cfg.PollInterval = d
	}

	return cfg, nil
}

// Watch reloads envPath whenever it changes on disk and invokes onChange
// with the newly loaded Config. It runs until the returned watcher is
// closed; a reload that fails is logged and onChange is not called.
func Watch(envPath string, onChange func(Config)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(envPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", envPath, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(envPath)
				if err != nil {
					log.Error().Err(err).Msg("config: reload failed, keeping previous config")
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("config: watcher error")
			}
		}
	}()

	return watcher, nil
}
