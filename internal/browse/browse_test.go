package browse

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"podcast-player/internal/models"
)

type fakeSearcher struct {
	shows []models.Show
	err   error
	terms []string
}

func (f *fakeSearcher) Search(_ context.Context, term string) ([]models.Show, error) {
	f.terms = append(f.terms, term)
	if f.err != nil {
		return nil, f.err
	}
	return f.shows, nil
}

type fakeLoader struct {
	episodes map[string][]models.Episode
	err      error
	urls     []string
}

func (f *fakeLoader) Fetch(_ context.Context, feedURL string) ([]models.Episode, error) {
	f.urls = append(f.urls, feedURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.episodes[feedURL], nil
}

func newTestBrowser(t *testing.T) (*Browser, *fakeSearcher, *fakeLoader) {
	t.Helper()
	searcher := &fakeSearcher{shows: []models.Show{
		{ID: "1", Title: "Go Time", FeedURL: "https://feeds.example.com/gotime"},
		{ID: "2", Title: "Other", FeedURL: "https://feeds.example.com/other"},
	}}
	loader := &fakeLoader{episodes: map[string][]models.Episode{
		"https://feeds.example.com/gotime": {
			{ID: "ep-1", Title: "One", AudioURL: "https://cdn.example.com/1.mp3"},
			{ID: "ep-2", Title: "Two"},
		},
	}}
	return New(searcher, loader, log.New(io.Discard, "", 0)), searcher, loader
}

func TestSearchStoresSnapshot(t *testing.T) {
	b, searcher, _ := newTestBrowser(t)

	shows, err := b.Search(context.Background(), "go")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(shows) != 2 || len(searcher.terms) != 1 {
		t.Fatalf("unexpected search result %+v", shows)
	}

	shows[0].Title = "mutated"
	if b.Shows()[0].Title != "Go Time" {
		t.Fatalf("returned slice must not alias the snapshot")
	}
}

func TestSearchFailureKeepsPreviousSnapshot(t *testing.T) {
	b, searcher, _ := newTestBrowser(t)
	if _, err := b.Search(context.Background(), "go"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	searcher.err = errors.New("offline")
	if _, err := b.Search(context.Background(), "rust"); err == nil {
		t.Fatalf("expected search error")
	}
	if len(b.Shows()) != 2 {
		t.Fatalf("expected previous snapshot to survive")
	}
}

func TestSelectShowLoadsEpisodes(t *testing.T) {
	b, _, loader := newTestBrowser(t)
	if _, err := b.Search(context.Background(), "go"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	show, episodes, err := b.SelectShow(context.Background(), " 1 ")
	if err != nil {
		t.Fatalf("SelectShow: %v", err)
	}
	if show.Title != "Go Time" || len(episodes) != 2 {
		t.Fatalf("unexpected selection %+v %+v", show, episodes)
	}
	if len(loader.urls) != 1 || loader.urls[0] != "https://feeds.example.com/gotime" {
		t.Fatalf("expected feed fetch, got %v", loader.urls)
	}

	ep, err := b.Episode("ep-1")
	if err != nil || ep.Title != "One" {
		t.Fatalf("expected episode lookup, got %+v %v", ep, err)
	}

	current, listing, ok := b.Episodes()
	if !ok || current.ID != "1" || len(listing) != 2 {
		t.Fatalf("unexpected current listing %+v %+v %t", current, listing, ok)
	}
}

func TestSelectShowUnknown(t *testing.T) {
	b, _, loader := newTestBrowser(t)

	if _, _, err := b.SelectShow(context.Background(), "1"); !errors.Is(err, ErrUnknownShow) {
		t.Fatalf("expected ErrUnknownShow before any search, got %v", err)
	}
	if len(loader.urls) != 0 {
		t.Fatalf("expected no feed fetch")
	}
}

func TestSelectShowLoaderFailureKeepsListing(t *testing.T) {
	b, _, loader := newTestBrowser(t)
	if _, err := b.Search(context.Background(), "go"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, _, err := b.SelectShow(context.Background(), "1"); err != nil {
		t.Fatalf("SelectShow: %v", err)
	}

	loader.err = errors.New("feed down")
	if _, _, err := b.SelectShow(context.Background(), "2"); err == nil {
		t.Fatalf("expected loader error")
	}

	current, _, ok := b.Episodes()
	if !ok || current.ID != "1" {
		t.Fatalf("expected previous listing to survive, got %+v", current)
	}
}

func TestEpisodeUnknown(t *testing.T) {
	b, _, _ := newTestBrowser(t)
	if _, err := b.Episode("ep-1"); !errors.Is(err, ErrUnknownEpisode) {
		t.Fatalf("expected ErrUnknownEpisode, got %v", err)
	}
	if _, _, ok := b.Episodes(); ok {
		t.Fatalf("expected no current show")
	}
}

func TestSelectionValidate(t *testing.T) {
	valid := []Selection{{Kind: KindShow, ID: "1"}, {Kind: KindEpisode, ID: "ep"}}
	for _, sel := range valid {
		if err := sel.Validate(); err != nil {
			t.Fatalf("expected %+v to be valid: %v", sel, err)
		}
	}

	invalid := []Selection{{Kind: "movie", ID: "1"}, {Kind: KindShow, ID: "  "}, {}}
	for _, sel := range invalid {
		if err := sel.Validate(); !errors.Is(err, ErrInvalidSelection) {
			t.Fatalf("expected %+v to be rejected, got %v", sel, err)
		}
	}
}

func TestConcurrentReads(t *testing.T) {
	b, _, _ := newTestBrowser(t)
	if _, err := b.Search(context.Background(), "go"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Shows()
				_, _, _ = b.Episodes()
				_, _ = b.Episode("ep-1")
			}
		}()
	}
	wg.Wait()
}
