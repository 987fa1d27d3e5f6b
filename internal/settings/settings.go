package settings

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	defaultCountry       = "US"
	defaultSearchLimit   = 50
	maxSearchLimit       = 200
	defaultUserAgent     = "podcast-player/1.0"
	defaultMaxAudioBytes = 1 << 30
)

// Settings are the user-tunable knobs that may change while the player runs.
type Settings struct {
	Country       string
	SearchLimit   int
	SearchBaseURL string
	UserAgent     string
	MaxAudioBytes int64
}

// Defaults returns the built-in settings before any file or environment
// overrides.
func Defaults() Settings {
	return Settings{
		Country:       defaultCountry,
		SearchLimit:   defaultSearchLimit,
		UserAgent:     defaultUserAgent,
		MaxAudioBytes: defaultMaxAudioBytes,
	}
}

type settingsYAML struct {
	Search struct {
		Country string `yaml:"country"`
		Limit   int    `yaml:"limit"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"search"`
	HTTP struct {
		UserAgent string `yaml:"user_agent"`
	} `yaml:"http"`
	Download struct {
		MaxBytes int64 `yaml:"max_bytes"`
	} `yaml:"download"`
}

// Parse applies a YAML document on top of the defaults. Environment
// overrides are applied last.
func Parse(data []byte) (Settings, error) {
	s := Defaults()

	var doc settingsYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}

	if value := strings.TrimSpace(doc.Search.Country); value != "" {
		s.Country = strings.ToUpper(value)
	}
	if doc.Search.Limit > 0 {
		s.SearchLimit = doc.Search.Limit
	}
	if value := strings.TrimSpace(doc.Search.BaseURL); value != "" {
		s.SearchBaseURL = value
	}
	if value := strings.TrimSpace(doc.HTTP.UserAgent); value != "" {
		s.UserAgent = value
	}
	if doc.Download.MaxBytes > 0 {
		s.MaxAudioBytes = doc.Download.MaxBytes
	}

	applyEnv(&s)
	return s, nil
}

func applyEnv(s *Settings) {
	if value := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_COUNTRY")); value != "" {
		s.Country = strings.ToUpper(value)
	}
	if value := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_SEARCH_LIMIT")); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			s.SearchLimit = n
		}
	}
	if value := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_USER_AGENT")); value != "" {
		s.UserAgent = value
	}
	if value := strings.TrimSpace(os.Getenv("PODCAST_PLAYER_MAX_AUDIO_BYTES")); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			s.MaxAudioBytes = n
		}
	}
	if s.SearchLimit > maxSearchLimit {
		s.SearchLimit = maxSearchLimit
	}
}

// Store holds the current Settings, reloading them when the backing YAML file
// changes on disk.
type Store struct {
	file        string
	logger      *log.Logger
	watcher     *fsnotify.Watcher
	reloadDelay time.Duration

	mu      sync.RWMutex
	current Settings

	reloadMu    sync.Mutex
	reloadTimer *time.Timer
	done        chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// Static returns a Store with no backing file: defaults plus environment
// overrides, never reloaded.
func Static() *Store {
	s := Defaults()
	applyEnv(&s)
	return &Store{current: s, done: make(chan struct{})}
}

// NewStore loads filePath and watches it for changes. A missing file yields
// the defaults; a malformed one is an error at start and ignored (keeping the
// previous settings) on reload.
func NewStore(filePath string, debounce time.Duration, logger *log.Logger) (*Store, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	s := &Store{
		file:        filepath.Clean(filePath),
		logger:      logger,
		watcher:     watcher,
		reloadDelay: debounce,
		done:        make(chan struct{}),
	}

	if err := s.reload(); err != nil {
		watcher.Close()
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(s.file)); err != nil {
		watcher.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// Current returns the settings in effect.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Close stops the file watcher.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.reloadMu.Lock()
		if s.reloadTimer != nil {
			s.reloadTimer.Stop()
			s.reloadTimer = nil
		}
		s.reloadMu.Unlock()

		if s.watcher != nil {
			s.closeErr = s.watcher.Close()
		}
		s.wg.Wait()
	})
	return s.closeErr
}

func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.file {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.scheduleReload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("settings watcher error: %v", err)
		case <-s.done:
			return
		}
	}
}

func (s *Store) scheduleReload() {
	select {
	case <-s.done:
		return
	default:
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.reloadTimer != nil {
		s.reloadTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.reloadDelay, func() {
		s.fireReload(timer)
	})

	s.reloadTimer = timer
}

func (s *Store) fireReload(timer *time.Timer) {
	select {
	case <-s.done:
		return
	default:
	}

	if err := s.reload(); err != nil {
		s.logger.Printf("settings reload error: %v; keeping previous settings", err)
	}

	s.reloadMu.Lock()
	if s.reloadTimer == timer {
		s.reloadTimer = nil
	}
	s.reloadMu.Unlock()
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.file)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		data = nil
		s.logger.Printf("settings file %s missing; using defaults", s.file)
	}

	next, err := Parse(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.logger.Printf("settings loaded: country=%s limit=%d max_audio_bytes=%d", next.Country, next.SearchLimit, next.MaxAudioBytes)
	return nil
}
