// Package speaker drives the system audio device through beep.
package speaker

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	beepspeaker "github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"podcast-player/internal/playback"
)

const (
	BufferSize = 100 * time.Millisecond
	resampleQuality   = 4
)

// ErrUnsupportedFormat is wrapped in a playback.LoadError for files without a decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ErrNotLoaded is returned by Play before a successful Load.
var ErrNotLoaded = errors.New("no track loaded")

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// SupportedExtensions lists the file extensions Speaker can decode.
func SupportedExtensions() []string {
	return []string{".flac", ".mp3", ".ogg", ".wav"}
}

// Speaker plays staged files through the system audio device.
type Speaker struct {
	logger *log.Logger

	mu          sync.Mutex
	initialized bool
	rate        beep.SampleRate
	path        string
	file        *os.File
	stream      beep.StreamSeekCloser
	format      beep.Format
	ctrl        *beep.Ctrl

	finished atomic.Bool
}

// New returns an engine bound to the default output device. The device
// is opened lazily on the first successful Load.
func New(logger *log.Logger) *Speaker {
	if logger == nil {
		logger = log.Default()
	}
	return &Speaker{logger: logger}
}

// Load decodes the file at path, replacing any previously loaded track.
func (s *Speaker) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unloadLocked()

	ext := strings.ToLower(filepath.Ext(path))
	decode, ok := decoders[ext]
	if !ok {
		return &playback.LoadError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)}
	}

	f, err := os.Open(path)
	if err != nil {
		return &playback.LoadError{Path: path, Err: err}
	}

	stream, format, err := decode(f)
	if err != nil {
		f.Close()
		return &playback.LoadError{Path: path, Err: err}
	}

	if err := s.initLocked(format.SampleRate); err != nil {
		stream.Close()
		f.Close()
		return &playback.LoadError{Path: path, Err: err}
	}

	s.path = path
	s.file = f
	s.stream = stream
	s.format = format
	s.finished.Store(false)

	s.logger.Printf("loaded %s (%d Hz, %d channels, %s)", filepath.Base(path), format.SampleRate, format.NumChannels, format.SampleRate.D(stream.Len()).Round(time.Second))
	return nil
}

func (s *Speaker) initLocked(rate beep.SampleRate) error {
	if s.initialized {
		return nil
	}
	if err := beepspeaker.Init(rate, rate.N(BufferSize)); err != nil {
		return fmt.Errorf("initialize speaker: %w", err)
	}
	s.rate = rate
	s.initialized = true
	return nil
}

// Play starts the loaded track at from. Offsets past the end are clamped.
func (s *Speaker) Play(from time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return ErrNotLoaded
	}

	beepspeaker.Clear()

	pos := s.format.SampleRate.N(from)
	if pos < 0 {
		pos = 0
	}
	if last := s.stream.Len() - 1; pos > last {
		pos = max(last, 0)
	}
	if err := s.stream.Seek(pos); err != nil {
		return fmt.Errorf("seek %s: %w", filepath.Base(s.path), err)
	}

	var src beep.Streamer = s.stream
	if s.format.SampleRate != s.rate {
		src = beep.Resample(resampleQuality, s.format.SampleRate, s.rate, s.stream)
	}

	s.finished.Store(false)
	s.ctrl = &beep.Ctrl{Streamer: src}
	// The callback runs on the speaker goroutine with the speaker lock held.
	beepspeaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		s.finished.Store(true)
	})))
	return nil
}

// Pause silences output, keeping the current position.
func (s *Speaker) Pause() {
	s.setPaused(true)
}

// Resume continues playback after Pause.
func (s *Speaker) Resume() {
	s.setPaused(false)
}

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl == nil {
		return
	}
	beepspeaker.Lock()
	s.ctrl.Paused = paused
	beepspeaker.Unlock()
}

// Stop halts output and closes the loaded file.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
}

func (s *Speaker) unloadLocked() {
	if s.initialized {
		beepspeaker.Clear()
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.logger.Printf("close decoder for %s: %v", s.path, err)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.logger.Printf("close %s: %v", s.path, err)
		}
	}
	s.ctrl = nil
	s.stream = nil
	s.file = nil
	s.path = ""
	s.finished.Store(false)
}

// Position returns the elapsed time of the loaded track.
func (s *Speaker) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return 0
	}
	beepspeaker.Lock()
	pos := s.stream.Position()
	beepspeaker.Unlock()
	return s.format.SampleRate.D(pos)
}

// Finished reports whether the loaded track reached its end.
func (s *Speaker) Finished() bool {
	return s.finished.Load()
}

// Close stops playback and releases the output device.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unloadLocked()
	if s.initialized {
		beepspeaker.Close()
		s.initialized = false
	}
}
