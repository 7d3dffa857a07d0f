package models

import "time"

// NewsItem represents one news article, from either the one-shot list
// endpoint or the streaming feed
type NewsItem struct {
	ID          int64     `json:"id"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Symbols     []string  `json:"symbols"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsPage is one page of a historical news listing
type NewsPage struct {
	Items     []NewsItem `json:"items"`
	NextToken string     `json:"next_token,omitempty"`
}
