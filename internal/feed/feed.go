package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"podcast-player/internal/models"
)

const itunesNS = "http://www.itunes.com/dtds/podcast-1.0.dtd"

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

// Elements sharing a local name across namespaces (title, itunes:title) are
// collected together and told apart afterwards.
type nsText struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type rssItem struct {
	Titles         []nsText       `xml:"title"`
	Descriptions   []nsText       `xml:"description"`
	Summary        string         `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd summary"`
	GUID           string         `xml:"guid"`
	PubDate        string         `xml:"pubDate"`
	ITunesDuration string         `xml:"http://www.itunes.com/dtds/podcast-1.0.dtd duration"`
	Enclosures     []rssEnclosure `xml:"enclosure"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int64  `xml:"length,attr"`
}

// Parse reads an RSS 2.0 podcast feed and returns its episodes in document order.
func Parse(r io.Reader) ([]models.Episode, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.CharsetReader = charsetReader

	var doc rssFeed
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	episodes := make([]models.Episode, 0, len(doc.Channel.Items))
	seen := make(map[string]struct{}, len(doc.Channel.Items))

	for i, item := range doc.Channel.Items {
		ep := models.Episode{
			Title:           pickText(item.Titles, ""),
			Description:     pickText(item.Descriptions, ""),
			DurationSeconds: ParseDuration(item.ITunesDuration),
			PublishedAt:     parsePubDate(item.PubDate),
		}
		if ep.Title == "" {
			ep.Title = pickText(item.Titles, itunesNS)
		}
		if ep.Description == "" {
			ep.Description = strings.TrimSpace(item.Summary)
		}

		if len(item.Enclosures) > 0 {
			ep.AudioURL = strings.TrimSpace(item.Enclosures[0].URL)
			ep.AudioType = strings.TrimSpace(item.Enclosures[0].Type)
		}

		id := strings.TrimSpace(item.GUID)
		if id == "" {
			id = ep.AudioURL
		}
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if _, dup := seen[id]; dup {
			id = fmt.Sprintf("%s#%d", id, i+1)
		}
		seen[id] = struct{}{}
		ep.ID = id

		episodes = append(episodes, ep)
	}

	return episodes, nil
}

func pickText(values []nsText, space string) string {
	for _, v := range values {
		if v.XMLName.Space == space {
			if text := strings.TrimSpace(v.Value); text != "" {
				return text
			}
		}
	}
	return ""
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported feed charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// ParseDuration normalises an itunes:duration value to seconds. Plain seconds
// ("3600", "3600.5"), "MM:SS" and "HH:MM:SS" are accepted; anything else is
// reported as 0, meaning unknown.
func ParseDuration(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0
	}

	var total float64
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i < len(parts)-1 {
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return 0
			}
			total = total*60 + float64(n)
			continue
		}

		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		if len(parts) > 1 && v >= 60 {
			return 0
		}
		total = total*60 + v
	}
	return total
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Client downloads and parses show feeds.
type Client struct {
	http      *http.Client
	userAgent func() string
}

// New returns a Client. userAgent is consulted per request and may be nil.
func New(httpClient *http.Client, userAgent func() string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if userAgent == nil {
		userAgent = func() string { return "" }
	}
	return &Client{http: httpClient, userAgent: userAgent}
}

// Fetch retrieves feedURL and returns its episodes.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]models.Episode, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed url is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	if ua := strings.TrimSpace(c.userAgent()); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: http %d", feedURL, resp.StatusCode)
	}

	return Parse(resp.Body)
}
