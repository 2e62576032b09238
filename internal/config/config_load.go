package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			MessageDelayMs:  2000,
			MaxRetries:      3,
			AlbumDebounceMs: 1000,
			ReadyTimeoutSec: 30,
		},
		Webhook: WebhookConfig{
			TimeoutSec: 5,
		},
		Watermark: WatermarkConfig{
			CropBottomPx: 48,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "tgmirror",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error — env vars alone can configure the relay.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("TGMIRROR_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("TGMIRROR_TELEGRAM_PROXY", &c.Telegram.Proxy)

	envStr("TGMIRROR_ROUTES", &c.Relay.Routes)
	envStr("TGMIRROR_SEARCH_ROUTES", &c.Relay.SearchRoutes)
	envStr("TGMIRROR_SOURCE_CHANNEL", &c.Relay.SourceChannel)
	envStr("TGMIRROR_TARGET_CHANNEL", &c.Relay.TargetChannel)

	envStr("TGMIRROR_WEBHOOK_URL", &c.Webhook.URL)

	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envInt("TGMIRROR_MESSAGE_DELAY_MS", &c.Relay.MessageDelayMs)
	envInt("TGMIRROR_MAX_RETRIES", &c.Relay.MaxRetries)
	envInt("TGMIRROR_ALBUM_DEBOUNCE_MS", &c.Relay.AlbumDebounceMs)
	envInt("TGMIRROR_READY_TIMEOUT_SEC", &c.Relay.ReadyTimeoutSec)

	if v := os.Getenv("TGMIRROR_DISABLE_BUTTONS"); v != "" {
		c.Relay.DisableButtons = v == "true" || v == "1"
	}

	envStr("TGMIRROR_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TGMIRROR_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("TGMIRROR_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("TGMIRROR_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TGMIRROR_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// MessageDelay returns the inter-message send delay as a Duration.
func (c *Config) MessageDelay() time.Duration {
	return time.Duration(c.Relay.MessageDelayMs) * time.Millisecond
}

// AlbumDebounce returns the album quiescence window as a Duration.
func (c *Config) AlbumDebounce() time.Duration {
	return time.Duration(c.Relay.AlbumDebounceMs) * time.Millisecond
}

// ReadyTimeout returns the client readiness handshake timeout.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Relay.ReadyTimeoutSec) * time.Second
}

// Watch reloads the config file on change and invokes onChange with the new
// config. Route-table consumers swap atomically; a broken rewrite of the
// file is logged and the previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory: editors replace the file, which drops a watch
	// registered on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				// Editors emit bursts of writes; reload once per burst.
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					cfg, loadErr := Load(path)
					if loadErr != nil {
						slog.Warn("config reload failed, keeping previous", "path", path, "error", loadErr)
						return
					}
					slog.Info("config reloaded", "path", path)
					onChange(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
