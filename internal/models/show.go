package models

// Show is a podcast returned by a catalog search.
type Show struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	FeedURL     string `json:"feed_url"`
	Description string `json:"description"`
	Author      string `json:"author,omitempty"`
}
