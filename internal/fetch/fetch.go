package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"podcast-player/internal/metrics"
)

// ErrReferenceMissing is returned by Start when an episode has no audio reference.
var ErrReferenceMissing = errors.New("episode has no audio reference")

// ErrTooLarge is reported when a response body exceeds the configured limit.
var ErrTooLarge = errors.New("audio exceeds download size limit")

// Error wraps a transport or read failure for one reference.
type Error struct {
	Reference string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Reference, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is reported when the remote source answers with a non-success status.
type StatusError struct {
	Reference  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: http %d", e.Reference, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: http %d: %s", e.Reference, e.StatusCode, e.Body)
}

// Result is the single terminal notification of a fetch. Err is nil on success.
type Result struct {
	Generation  uint64
	Reference   string
	Data        []byte
	ContentType string
	Err         error
}

// Handle identifies one in-flight fetch.
type Handle struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHandle builds a handle around an arbitrary cancel function. It is meant for
// alternative Fetcher implementations; the returned handle's Done channel is
// closed by Cancel.
func NewHandle(generation uint64, cancel func()) *Handle {
	h := &Handle{generation: generation, done: make(chan struct{})}
	var once sync.Once
	h.cancel = func() {
		once.Do(func() {
			if cancel != nil {
				cancel()
			}
			close(h.done)
		})
	}
	return h
}

// Generation returns the session generation the fetch was started for.
func (h *Handle) Generation() uint64 {
	return h.generation
}

// Cancel requests early termination. No result is delivered after Cancel returns.
func (h *Handle) Cancel() {
	if h == nil || h.cancel == nil {
		return
	}
	h.cancel()
}

// Done is closed once the worker has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Options configures a Fetcher.
type Options struct {
	Client    *http.Client
	UserAgent string
	// MaxBytes caps the accepted body size; zero disables the limit.
	MaxBytes int64
	Logger   *log.Logger
	Metrics  *metrics.Metrics
}

// Fetcher downloads episode audio on background goroutines.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// New returns a Fetcher. The default client applies no overall timeout.
func New(opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Fetcher{
		client:    opts.Client,
		userAgent: strings.TrimSpace(opts.UserAgent),
		maxBytes:  opts.MaxBytes,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Start begins retrieving reference and returns immediately. deliver is called
// exactly once from the worker goroutine unless the handle is cancelled first.
// Cancel waits for an in-progress deliver to return, so deliver must not block.
func (f *Fetcher) Start(reference string, generation uint64, deliver func(Result)) (*Handle, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceMissing
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{generation: generation, done: make(chan struct{})}

	// mu orders Cancel against delivery: once cancelled, deliver is never entered.
	var mu sync.Mutex
	cancelled := false
	h.cancel = func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		cancel()
	}

	go func() {
		defer close(h.done)
		defer cancel()

		res := Result{Generation: generation, Reference: reference}
		res.Data, res.ContentType, res.Err = f.download(ctx, reference)

		mu.Lock()
		defer mu.Unlock()
		if cancelled {
			f.metrics.FetchCancelled()
			f.logger.Printf("fetch of %s (generation %d) cancelled", reference, generation)
			return
		}

		if res.Err != nil {
			f.metrics.FetchFailed()
		} else {
			f.metrics.FetchCompleted(len(res.Data))
		}
		deliver(res)
	}()

	return h, nil
}

func (f *Fetcher) download(ctx context.Context, reference string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, nil)
	if err != nil {
		return nil, "", &Error{Reference: reference, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &Error{Reference: reference, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", &StatusError{
			Reference:  reference,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		if resp.ContentLength > f.maxBytes {
			return nil, "", &Error{Reference: reference, Err: ErrTooLarge}
		}
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", &Error{Reference: reference, Err: err}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, "", &Error{Reference: reference, Err: ErrTooLarge}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

var extensionsByType = map[string]string{
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/x-wav":  ".wav",
	"audio/wav":    ".wav",
	"audio/wave":   ".wav",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"audio/ogg":    ".ogg",
	"audio/vorbis": ".ogg",
}

var knownExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".flac": {},
	".ogg":  {},
}

// Extension picks the staging file extension for downloaded audio: the URL path
// extension when recognised, then the content type, then ".mp3".
func Extension(reference, contentType string) string {
	if u, err := url.Parse(reference); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		if _, ok := knownExtensions[ext]; ok {
			return ext
		}
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extensionsByType[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}
	return ".mp3"
}
