package playback

import (
	"fmt"
	"time"
)

// Engine is the audio output device the controller drives. Implementations
// hold at most one loaded track.
type Engine interface {
	// Load prepares the file at path. It fails with *LoadError when the file
	// cannot be read or its format is unsupported.
	Load(path string) error
	// Play starts the loaded track from the given offset, replacing any
	// playback already in progress.
	Play(from time.Duration) error
	Pause()
	Resume()
	// Stop halts output and unloads the track.
	Stop()
	Position() time.Duration
	// Finished reports whether the track has played to its end.
	Finished() bool
}

// LoadError reports a staged file that could not be handed to the engine.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
