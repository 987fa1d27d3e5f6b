package controller

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"podcast-player/internal/fetch"
	"podcast-player/internal/metadata"
	"podcast-player/internal/metrics"
	"podcast-player/internal/models"
	"podcast-player/internal/playback"
	"podcast-player/internal/staging"
)

const defaultPollInterval = 250 * time.Millisecond

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("controller closed")

// Fetcher starts background retrieval of episode audio.
type Fetcher interface {
	Start(reference string, generation uint64, deliver func(fetch.Result)) (*fetch.Handle, error)
}

// Stager owns the on-disk copies of fetched audio.
type Stager interface {
	Acquire(generation uint64, data []byte, ext string) (*staging.Handle, error)
	Release(h *staging.Handle) error
	Outstanding() int
}

// Options wires a Controller to its collaborators. Fetcher, Stager and Engine are required.
type Options struct {
	Fetcher Fetcher
	Stager  Stager
	Engine  playback.Engine
	// Inspect, when set, reads the staged file after a successful load. Its
	// tags fill the snapshot and its duration stands in for a missing one.
	Inspect      metadata.Inspector
	Logger       *log.Logger
	Debug        bool
	Metrics      *metrics.Metrics
	PollInterval time.Duration
}

type session struct {
	episode     models.Episode
	status      Status
	reason      string
	staged      *staging.Handle
	loaded      bool
	position    float64
	duration    float64
	seekPending bool
	fetch       *fetch.Handle

	artist string
	album  string
}

// Controller plays one episode at a time. Commands may be issued from any
// goroutine; fetch results and engine polling are applied by an internal
// control goroutine.
type Controller struct {
	fetcher      Fetcher
	stager       Stager
	engine       playback.Engine
	inspect      metadata.Inspector
	logger       *log.Logger
	debug        bool
	metrics      *metrics.Metrics
	pollInterval time.Duration

	mu         sync.Mutex
	generation uint64
	sess       session
	closed     bool

	pendingMu sync.Mutex
	pending   []fetch.Result
	wake      chan struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New creates a Controller in the Idle state and starts its control goroutine.
func New(opts Options) (*Controller, error) {
	if opts.Fetcher == nil || opts.Stager == nil || opts.Engine == nil {
		return nil, errors.New("controller requires a fetcher, a stager and an engine")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	c := &Controller{
		fetcher:      opts.Fetcher,
		stager:       opts.Stager,
		engine:       opts.Engine,
		inspect:      opts.Inspect,
		logger:       opts.Logger,
		debug:        opts.Debug,
		metrics:      opts.Metrics,
		pollInterval: opts.PollInterval,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}

	c.wg.Add(1)
	go c.run()

	return c, nil
}

// Close tears down the current session, releasing any staged audio, and
// stops the control goroutine.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = c.teardownLocked()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		c.wg.Wait()
	})
	return c.closeErr
}

// Play abandons whatever is playing or loading and starts fetching ep.
// An episode without an audio reference fails with fetch.ErrReferenceMissing
// and leaves the controller Idle.
func (c *Controller) Play(ep models.Episode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.teardownLocked(); err != nil {
		c.logger.Printf("teardown before play: %v", err)
	}

	generation := c.generation
	handle, err := c.fetcher.Start(ep.AudioURL, generation, c.deliver)
	if err != nil {
		c.logger.Printf("cannot play %q: %v", ep.Title, err)
		return err
	}

	c.sess = session{
		episode:  ep,
		duration: sanitizeSeconds(ep.DurationSeconds),
		fetch:    handle,
	}
	c.setStatusLocked(StatusFetching)
	return nil
}

// TogglePause switches between Playing and Paused. It reports false when the
// session is in any other state.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sess.status {
	case StatusPlaying:
		if c.engine.Finished() {
			c.finishLocked()
			return false
		}
		c.refreshPositionLocked()
		c.engine.Pause()
		c.setStatusLocked(StatusPaused)
		return true
	case StatusPaused:
		if c.sess.seekPending {
			c.sess.seekPending = false
			if err := c.engine.Play(toDuration(c.sess.position)); err != nil {
				c.loadFailedLocked(err)
				return true
			}
		} else {
			c.engine.Resume()
		}
		c.setStatusLocked(StatusPlaying)
		return true
	default:
		c.debugf("toggle pause ignored while %s", c.sess.status)
		return false
	}
}

// Seek moves playback to fraction of the episode duration. It reports false,
// changing nothing, unless the session is Playing or Paused with a known duration.
func (c *Controller) Seek(fraction float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.status != StatusPlaying && c.sess.status != StatusPaused {
		c.debugf("seek ignored while %s", c.sess.status)
		return false
	}
	if c.sess.status == StatusPlaying && c.engine.Finished() {
		c.finishLocked()
		return false
	}
	if c.sess.duration <= 0 || math.IsNaN(fraction) {
		c.debugf("seek ignored: duration unknown or fraction invalid")
		return false
	}

	fraction = math.Max(0, math.Min(1, fraction))
	target := fraction * c.sess.duration

	if c.sess.status == StatusPaused {
		c.sess.position = target
		c.sess.seekPending = true
		return true
	}

	if err := c.engine.Play(toDuration(target)); err != nil {
		c.loadFailedLocked(err)
		return true
	}
	c.sess.position = target
	return true
}

// Dismiss discards the session and returns to Idle.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.teardownLocked(); err != nil {
		c.logger.Printf("dismiss: %v", err)
	}
}

// CurrentPosition returns the session's elapsed time, duration and status.
func (c *Controller) CurrentPosition() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pollLocked()
	return Snapshot{
		Status:       c.sess.status,
		Reason:       c.sess.reason,
		Elapsed:      c.sess.position,
		Duration:     c.sess.duration,
		EpisodeID:    c.sess.episode.ID,
		EpisodeTitle: c.sess.episode.Title,
		Artist:       c.sess.artist,
		Album:        c.sess.album,
		Generation:   c.generation,
	}
}

// deliver queues a fetch result for the control goroutine without blocking.
func (c *Controller) deliver(res fetch.Result) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, res)
	c.pendingMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.wake:
			c.drainResults()
		case <-ticker.C:
			c.mu.Lock()
			c.pollLocked()
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) drainResults() {
	c.pendingMu.Lock()
	batch := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	for _, res := range batch {
		c.handleResult(res)
	}
}

func (c *Controller) handleResult(res fetch.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Generation != c.generation || c.sess.status != StatusFetching {
		c.metrics.StaleResult()
		c.debugf("dropping fetch result for generation %d (current %d, %s)", res.Generation, c.generation, c.sess.status)
		return
	}
	c.sess.fetch = nil

	if res.Err != nil {
		c.failLocked(res.Err)
		return
	}

	handle, err := c.stager.Acquire(c.generation, res.Data, fetch.Extension(res.Reference, res.ContentType))
	if err != nil {
		c.failLocked(fmt.Errorf("stage audio: %w", err))
		return
	}
	c.sess.staged = handle
	c.metrics.SetStaged(c.stager.Outstanding())

	if err := c.engine.Load(handle.Path()); err != nil {
		c.loadFailedLocked(err)
		return
	}
	c.sess.loaded = true
	c.setStatusLocked(StatusReady)
	c.adoptStagedMetadataLocked()

	if err := c.engine.Play(toDuration(c.sess.position)); err != nil {
		c.loadFailedLocked(err)
		return
	}
	c.setStatusLocked(StatusPlaying)
}

// adoptStagedMetadataLocked fills in what the feed item left out from the
// staged file's tags and frames. A declared duration is never replaced.
func (c *Controller) adoptStagedMetadataLocked() {
	if c.inspect == nil {
		return
	}

	info, err := c.inspect(c.sess.staged.Path())
	if err != nil {
		c.logger.Printf("read metadata of %s: %v", c.sess.staged.Path(), err)
		return
	}

	c.sess.artist = info.Artist
	c.sess.album = info.Album
	if c.sess.episode.Title == "" && info.Title != "" {
		c.sess.episode.Title = info.Title
	}
	if c.sess.duration > 0 {
		return
	}
	if d := sanitizeSeconds(info.DurationSeconds); d > 0 {
		c.sess.duration = d
		c.logger.Printf("duration of %q taken from staged audio: %.0fs", c.sess.episode.Title, d)
	}
}

func (c *Controller) pollLocked() {
	if c.sess.status != StatusPlaying {
		return
	}
	if c.engine.Finished() {
		c.finishLocked()
		return
	}
	c.refreshPositionLocked()
}

func (c *Controller) refreshPositionLocked() {
	pos := c.engine.Position().Seconds()
	if pos > c.sess.position {
		c.sess.position = c.clampLocked(pos)
	}
}

func (c *Controller) finishLocked() {
	c.refreshPositionLocked()
	if c.sess.duration > 0 {
		c.sess.position = c.sess.duration
	}
	c.stopEngineLocked()
	if err := c.releaseLocked(); err != nil {
		c.logger.Printf("release after finish: %v", err)
	}
	c.setStatusLocked(StatusFinished)
}

// loadFailedLocked handles an engine that cannot play the staged file. The file
// is unusable, so it is released at once.
func (c *Controller) loadFailedLocked(err error) {
	var loadErr *playback.LoadError
	if !errors.As(err, &loadErr) {
		err = &playback.LoadError{Path: c.sess.staged.Path(), Err: err}
	}
	c.stopEngineLocked()
	if relErr := c.releaseLocked(); relErr != nil {
		c.logger.Printf("release after load failure: %v", relErr)
	}
	c.failLocked(err)
}

func (c *Controller) failLocked(err error) {
	c.sess.reason = err.Error()
	c.sess.seekPending = false
	c.setStatusLocked(StatusFailed)
}

// teardownLocked ends the current session and starts a new generation, so
// results of any fetch still in flight are recognised as stale.
func (c *Controller) teardownLocked() error {
	c.generation++

	if c.sess.fetch != nil {
		c.sess.fetch.Cancel()
		c.sess.fetch = nil
	}
	c.stopEngineLocked()
	err := c.releaseLocked()

	wasIdle := c.sess.status == StatusIdle
	c.sess = session{}
	if !wasIdle {
		c.metrics.Transition(StatusIdle.String())
		c.logger.Printf("session %d: idle", c.generation-1)
	}
	return err
}

func (c *Controller) stopEngineLocked() {
	if !c.sess.loaded {
		return
	}
	c.engine.Stop()
	c.sess.loaded = false
}

func (c *Controller) releaseLocked() error {
	if c.sess.staged == nil {
		return nil
	}
	err := c.stager.Release(c.sess.staged)
	c.sess.staged = nil
	c.metrics.SetStaged(c.stager.Outstanding())
	return err
}

func (c *Controller) setStatusLocked(status Status) {
	prev := c.sess.status
	c.sess.status = status
	c.metrics.Transition(status.String())

	if status == StatusFailed {
		c.logger.Printf("session %d: %s -> failed (%s): %s", c.generation, prev, c.sess.episode.Title, c.sess.reason)
		return
	}
	c.logger.Printf("session %d: %s -> %s (%s)", c.generation, prev, status, c.sess.episode.Title)
}

func (c *Controller) clampLocked(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if c.sess.duration > 0 && pos > c.sess.duration {
		return c.sess.duration
	}
	return pos
}

func (c *Controller) debugf(format string, args ...any) {
	if c.debug {
		c.logger.Printf("debug: "+format, args...)
	}
}

func sanitizeSeconds(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
