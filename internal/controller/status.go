package controller

import "fmt"

// Status is the lifecycle state of the playback session.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusReady
	StatusPlaying
	StatusPaused
	StatusFinished
	StatusFailed
)

var statusNames = map[Status]string{
	StatusIdle:     "idle",
	StatusFetching: "fetching",
	StatusReady:    "ready",
	StatusPlaying:  "playing",
	StatusPaused:   "paused",
	StatusFinished: "finished",
	StatusFailed:   "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status by name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// Snapshot is the pull-based view of the session for presentation layers.
type Snapshot struct {
	Status       Status  `json:"status"`
	Reason       string  `json:"reason,omitempty"`
	Elapsed      float64 `json:"elapsed_seconds"`
	Duration     float64 `json:"duration_seconds"`
	EpisodeID    string  `json:"episode_id,omitempty"`
	EpisodeTitle string  `json:"episode_title,omitempty"`
	Artist       string  `json:"artist,omitempty"`
	Album        string  `json:"album,omitempty"`
	Generation   uint64  `json:"generation"`
}
