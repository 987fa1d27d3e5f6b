package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr       = "127.0.0.1:8090"
	defaultReloadDebounceMS = 500
	defaultPollIntervalMS   = 250
	minPollIntervalMS       = 10
	stagingDirName          = "podcast-player"
)

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// ValidateListenAddr ensures the configured listen address is restricted to localhost.
func ValidateListenAddr(addr string) error {
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost for security")
}

// StagingDir returns the directory downloaded episodes are staged in. It is
// created with owner-only permissions when missing.
func StagingDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_STAGING_DIR"))
	if dir == "" {
		dir = filepath.Join(os.TempDir(), stagingDirName)
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", err
	}

	return abs, nil
}

// ResolveSettingsFile returns the absolute path to the YAML settings file when
// configured. The containing directory is created so it can be watched; the
// file itself may be absent. When no file is configured the second return
// value will be false.
func ResolveSettingsFile() (string, bool, error) {
	path := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_CONFIG"))
	if path == "" {
		return "", false, nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, err
	}

	return abs, true, nil
}

// ReloadDebounce returns how long to wait after a settings file change before
// reloading it.
func ReloadDebounce() time.Duration {
	return millisFromEnv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", defaultReloadDebounceMS, 0)
}

// PollInterval returns how often the controller samples the playback engine.
func PollInterval() time.Duration {
	return millisFromEnv("PODCAST_PLAYER_POLL_INTERVAL_MS", defaultPollIntervalMS, minPollIntervalMS)
}

// Debug reports whether verbose controller logging is enabled.
func Debug() bool {
	value := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_DEBUG"))
	if value == "" {
		return false
	}
	enabled, err := strconv.ParseBool(value)
	return err == nil && enabled
}

func millisFromEnv(key string, fallback, min int) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return time.Duration(fallback) * time.Millisecond
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < min {
		return time.Duration(fallback) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}
