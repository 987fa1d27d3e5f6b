package browse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"podcast-player/internal/models"
)

var (
	// ErrUnknownShow is returned when a selection names a show that is not
	// part of the latest search results.
	ErrUnknownShow = errors.New("show not in current results")
	// ErrUnknownEpisode is returned when a selection names an episode that is
	// not part of the current show's listing.
	ErrUnknownEpisode = errors.New("episode not in current listing")
	// ErrInvalidSelection is returned for selections with an unknown kind or
	// a blank id.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Kind tags what a selection refers to.
type Kind string

const (
	KindShow    Kind = "show"
	KindEpisode Kind = "episode"
)

// Selection is a user pick from a listing.
type Selection struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Validate reports ErrInvalidSelection for unknown kinds or blank ids.
func (s Selection) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSelection)
	}
	switch s.Kind {
	case KindShow, KindEpisode:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSelection, s.Kind)
	}
}

// Searcher finds shows by term.
type Searcher interface {
	Search(ctx context.Context, term string) ([]models.Show, error)
}

// EpisodeLoader lists the episodes behind a feed URL.
type EpisodeLoader interface {
	Fetch(ctx context.Context, feedURL string) ([]models.Episode, error)
}

// Browser keeps the latest search results and the episode listing of the
// selected show so selections can be resolved by id.
type Browser struct {
	searcher Searcher
	loader   EpisodeLoader
	logger   *log.Logger

	mu       sync.RWMutex
	shows    []models.Show
	show     *models.Show
	episodes []models.Episode
}

// New creates a Browser.
func New(searcher Searcher, loader EpisodeLoader, logger *log.Logger) *Browser {
	if logger == nil {
		logger = log.Default()
	}
	return &Browser{searcher: searcher, loader: loader, logger: logger}
}

// Search runs a directory search and replaces the show snapshot. On failure
// the previous snapshot is kept.
func (b *Browser) Search(ctx context.Context, term string) ([]models.Show, error) {
	shows, err := b.searcher.Search(ctx, term)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.shows = shows
	b.mu.Unlock()

	b.logger.Printf("search %q returned %d shows", strings.TrimSpace(term), len(shows))
	return copyShows(shows), nil
}

// SelectShow loads the episode listing of a show from the latest results.
func (b *Browser) SelectShow(ctx context.Context, id string) (models.Show, []models.Episode, error) {
	show, ok := b.findShow(id)
	if !ok {
		return models.Show{}, nil, fmt.Errorf("%w: %s", ErrUnknownShow, id)
	}

	episodes, err := b.loader.Fetch(ctx, show.FeedURL)
	if err != nil {
		return models.Show{}, nil, err
	}

	b.mu.Lock()
	b.show = &show
	b.episodes = episodes
	b.mu.Unlock()

	b.logger.Printf("loaded %d episodes for %q", len(episodes), show.Title)
	return show, copyEpisodes(episodes), nil
}

// Episode resolves an episode id against the current listing.
func (b *Browser) Episode(id string) (models.Episode, error) {
	id = strings.TrimSpace(id)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ep := range b.episodes {
		if ep.ID == id {
			return ep, nil
		}
	}
	return models.Episode{}, fmt.Errorf("%w: %s", ErrUnknownEpisode, id)
}

// Shows returns a copy of the latest search results.
func (b *Browser) Shows() []models.Show {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyShows(b.shows)
}

// Episodes returns the selected show, if any, and a copy of its listing.
func (b *Browser) Episodes() (models.Show, []models.Episode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.show == nil {
		return models.Show{}, nil, false
	}
	return *b.show, copyEpisodes(b.episodes), true
}

func (b *Browser) findShow(id string) (models.Show, bool) {
	id = strings.TrimSpace(id)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, show := range b.shows {
		if show.ID == id {
			return show, true
		}
	}
	return models.Show{}, false
}

func copyShows(in []models.Show) []models.Show {
	result := make([]models.Show, len(in))
	copy(result, in)
	return result
}

func copyEpisodes(in []models.Episode) []models.Episode {
	result := make([]models.Episode, len(in))
	copy(result, in)
	return result
}
