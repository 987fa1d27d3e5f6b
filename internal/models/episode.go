package models

import "time"

// Episode represents one playable item of a show as read from its feed.
// Values are treated as immutable once built by the feed parser.
type Episode struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationSeconds float64   `json:"duration_seconds"`
	AudioURL        string    `json:"audio_url,omitempty"`
	AudioType       string    `json:"audio_type,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitempty"`
}

// HasAudio reports whether the episode carries a playable audio reference.
func (e Episode) HasAudio() bool {
	return e.AudioURL != ""
}
