// Package publisher defines the outbound notification contract for finished
// crawls and discovery runs.
package publisher

import (
	"context"
	"time"
)

// Publisher delivers a JSON-serializable payload to a named topic and returns
// the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// CrawlCompleted is the payload announced when a crawl run finishes.
type CrawlCompleted struct {
	CrawlID    string    `json:"crawlId"`
	Site       string    `json:"site"`
	Status     string    `json:"status"`
	ReportURI  string    `json:"reportUri,omitempty"`
	TotalPages int       `json:"totalPages"`
	FinishedAt time.Time `json:"finishedAt"`
}

// TemplatesFound is the payload announced when template discovery finishes.
type TemplatesFound struct {
	Site            string    `json:"site"`
	FoundCount      int       `json:"foundCount"`
	MissingRequired []string  `json:"missingRequired,omitempty"`
	FinishedAt      time.Time `json:"finishedAt"`
}
