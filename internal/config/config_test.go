package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestStagingDirDefaultAndCustom(t *testing.T) {
	temp := t.TempDir()

	if runtime.GOOS != "windows" {
		t.Setenv("TMPDIR", temp)
		t.Setenv("PODCAST_PLAYER_STAGING_DIR", "")

		path, err := StagingDir()
		if err != nil {
			t.Fatalf("StagingDir default: %v", err)
		}
		assertSamePath(t, path, filepath.Join(temp, "podcast-player"))
	}

	tempHome := filepath.Join(temp, "home")
	if err := os.Mkdir(tempHome, 0o755); err != nil {
		t.Fatalf("mkdir temp home: %v", err)
	}

	t.Setenv("HOME", tempHome)
	t.Setenv("PODCAST_PLAYER_STAGING_DIR", "~/staging")

	path, err := StagingDir()
	if err != nil {
		t.Fatalf("StagingDir tilde: %v", err)
	}
	assertSamePath(t, path, filepath.Join(tempHome, "staging"))

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat staging dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected staging dir to be a directory")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o700 {
		t.Fatalf("expected owner-only staging dir, got %v", info.Mode().Perm())
	}
}

func TestResolveSettingsFile(t *testing.T) {
	temp := t.TempDir()

	t.Setenv("PODCAST_PLAYER_CONFIG", "")
	if path, ok, err := ResolveSettingsFile(); err != nil || ok || path != "" {
		t.Fatalf("expected no file when env unset, got %q %t %v", path, ok, err)
	}

	settingsFile := filepath.Join(temp, "conf", "settings.yaml")
	t.Setenv("PODCAST_PLAYER_CONFIG", settingsFile)

	path, ok, err := ResolveSettingsFile()
	if err != nil {
		t.Fatalf("ResolveSettingsFile: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok flag when env set")
	}
	if filepath.Base(path) != "settings.yaml" {
		t.Fatalf("unexpected settings path %s", path)
	}
	assertSamePath(t, filepath.Dir(path), filepath.Join(temp, "conf"))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected settings file to be left absent, got %v", err)
	}
}

func TestListenAddr(t *testing.T) {
	t.Setenv("PODCAST_PLAYER_LISTEN_ADDR", "")
	if ListenAddr() != "127.0.0.1:8090" {
		t.Fatalf("expected default listen address")
	}

	t.Setenv("PODCAST_PLAYER_LISTEN_ADDR", "localhost:9000")
	if ListenAddr() != "localhost:9000" {
		t.Fatalf("expected custom listen address")
	}
}

func TestValidateListenAddr(t *testing.T) {
	valid := []string{"127.0.0.1:8090", "localhost:9000", "[::1]:7000"}
	for _, addr := range valid {
		if err := ValidateListenAddr(addr); err != nil {
			t.Fatalf("expected %s to be valid: %v", addr, err)
		}
	}

	invalid := []string{"0.0.0.0:80", "192.168.1.1:1234", ":8090"}
	for _, addr := range invalid {
		if err := ValidateListenAddr(addr); err == nil {
			t.Fatalf("expected %s to be rejected", addr)
		}
	}
}

func TestReloadDebounce(t *testing.T) {
	t.Setenv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", "")
	if ReloadDebounce() != 500*time.Millisecond {
		t.Fatalf("expected default debounce")
	}

	t.Setenv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", "1500")
	if ReloadDebounce() != 1500*time.Millisecond {
		t.Fatalf("expected custom debounce")
	}

	t.Setenv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", "0")
	if ReloadDebounce() != 0 {
		t.Fatalf("expected zero debounce to be allowed")
	}

	t.Setenv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", "not-a-number")
	if ReloadDebounce() != 500*time.Millisecond {
		t.Fatalf("expected fallback debounce on parse error")
	}

	t.Setenv("PODCAST_PLAYER_RELOAD_DEBOUNCE_MS", "-10")
	if ReloadDebounce() != 500*time.Millisecond {
		t.Fatalf("expected fallback debounce on negative value")
	}
}

func TestPollInterval(t *testing.T) {
	t.Setenv("PODCAST_PLAYER_POLL_INTERVAL_MS", "")
	if PollInterval() != 250*time.Millisecond {
		t.Fatalf("expected default poll interval")
	}

	t.Setenv("PODCAST_PLAYER_POLL_INTERVAL_MS", "100")
	if PollInterval() != 100*time.Millisecond {
		t.Fatalf("expected custom poll interval")
	}

	t.Setenv("PODCAST_PLAYER_POLL_INTERVAL_MS", "1")
	if PollInterval() != 250*time.Millisecond {
		t.Fatalf("expected fallback for intervals below the minimum")
	}
}

func TestDebug(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"1":     true,
		"true":  true,
		"false": false,
		"yes":   false,
	}
	for value, want := range cases {
		t.Setenv("PODCAST_PLAYER_DEBUG", value)
		if got := Debug(); got != want {
			t.Fatalf("Debug() with %q = %t, want %t", value, got, want)
		}
	}
}

func assertSamePath(t *testing.T, got, want string) {
	t.Helper()
	resolvedGot, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("eval symlinks for %s: %v", got, err)
	}
	resolvedWant, err := filepath.EvalSymlinks(want)
	if err != nil {
		t.Fatalf("eval symlinks for %s: %v", want, err)
	}
	if resolvedGot != resolvedWant {
		t.Fatalf("expected %s, got %s", resolvedWant, resolvedGot)
	}
}
