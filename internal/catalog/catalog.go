package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"podcast-player/internal/models"
)

// DefaultBaseURL is the iTunes Search API endpoint.
const DefaultBaseURL = "https://itunes.apple.com/search"

// Options are the per-request search parameters.
type Options struct {
	BaseURL   string
	Country   string
	Limit     int
	UserAgent string
}

// OptionsFunc supplies Options at request time so settings reloads take effect
// without rebuilding the client.
type OptionsFunc func() Options

// Client searches the podcast directory.
type Client struct {
	http    *http.Client
	options OptionsFunc
}

// New returns a Client. A nil httpClient selects http.DefaultClient.
func New(httpClient *http.Client, options OptionsFunc) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if options == nil {
		options = func() Options { return Options{} }
	}
	return &Client{http: httpClient, options: options}
}

type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

type searchResult struct {
	CollectionID   int64  `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	ArtistName     string `json:"artistName"`
	FeedURL        string `json:"feedUrl"`
	Description    string `json:"description"`
}

// Search returns the shows matching term. Results lacking a title or a feed
// URL are skipped. An empty term yields no results and no request.
func (c *Client) Search(ctx context.Context, term string) ([]models.Show, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	opts := c.options()
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}

	endpoint, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse search url: %w", err)
	}
	query := endpoint.Query()
	query.Set("term", term)
	query.Set("media", "podcast")
	query.Set("entity", "podcast")
	if opts.Country != "" {
		query.Set("country", opts.Country)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search %q: http %d: %s", term, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	shows := make([]models.Show, 0, len(payload.Results))
	for _, result := range payload.Results {
		title := strings.TrimSpace(result.CollectionName)
		feedURL := strings.TrimSpace(result.FeedURL)
		if title == "" || feedURL == "" {
			continue
		}

		description := strings.TrimSpace(result.Description)
		if description == "" {
			description = title
		}

		id := feedURL
		if result.CollectionID != 0 {
			id = strconv.FormatInt(result.CollectionID, 10)
		}

		shows = append(shows, models.Show{
			ID:          id,
			Title:       title,
			FeedURL:     feedURL,
			Description: description,
			Author:      strings.TrimSpace(result.ArtistName),
		})
	}

	return shows, nil
}
