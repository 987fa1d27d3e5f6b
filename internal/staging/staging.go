package staging

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	lockName   = ".podcast-player.lock"
	filePrefix = "episode-"
)

// ErrDirLocked is returned by Open when another process already owns the directory.
var ErrDirLocked = errors.New("staging directory is in use by another player")

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("staging directory closed")

// Handle refers to one staged audio file. A handle is invalid once released.
type Handle struct {
	path       string
	generation uint64
}

// Path returns the location of the staged file.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Generation returns the session generation the file was staged for.
func (h *Handle) Generation() uint64 {
	if h == nil {
		return 0
	}
	return h.generation
}

// Dir owns a private directory holding the audio of the episode being played.
type Dir struct {
	root   string
	lock   *flock.Flock
	logger *log.Logger

	mu      sync.Mutex
	handles map[*Handle]struct{}
	closed  bool
}

// Open prepares root for staging. The directory is created when missing and
// locked for the lifetime of the Dir. Files left behind by a previous run are removed.
func Open(root string, logger *log.Logger) (*Dir, error) {
	if logger == nil {
		logger = log.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(abs, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock staging directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", abs, ErrDirLocked)
	}

	d := &Dir{
		root:    abs,
		lock:    lock,
		logger:  logger,
		handles: make(map[*Handle]struct{}),
	}
	d.purgeLeftovers()
	return d, nil
}

// Root returns the absolute staging directory.
func (d *Dir) Root() string {
	return d.root
}

// Acquire writes data to a new uniquely named file and returns its handle.
func (d *Dir) Acquire(generation uint64, data []byte, ext string) (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s%d-%s%s", filePrefix, generation, uuid.NewString(), ext)
	path := filepath.Join(d.root, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	h := &Handle{path: path, generation: generation}
	d.handles[h] = struct{}{}
	return h, nil
}

// Release deletes the file behind h and invalidates it. Releasing a nil,
// already released or unknown handle does nothing.
func (d *Dir) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseLocked(h)
}

func (d *Dir) releaseLocked(h *Handle) error {
	if _, ok := d.handles[h]; !ok {
		return nil
	}
	delete(d.handles, h)

	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Outstanding reports how many staged files are currently held.
func (d *Dir) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// Close releases every outstanding handle and unlocks the directory.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for h := range d.handles {
		if err := d.releaseLocked(h); err != nil {
			errs = append(errs, err)
		}
	}

	if err := d.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(d.lock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dir) purgeLeftovers() {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		d.logger.Printf("staging scan error for %s: %v", d.root, err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), filePrefix) {
			continue
		}
		path := filepath.Join(d.root, entry.Name())
		if err := os.Remove(path); err != nil {
			d.logger.Printf("failed to remove stale staged file %s: %v", path, err)
			continue
		}
		d.logger.Printf("removed stale staged file %s", path)
	}
}
