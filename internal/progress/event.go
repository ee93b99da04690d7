// Package progress defines the milestone events emitted during a crawl and
// the hub that fans them out to sinks. Events are the only coupling between
// the crawl pipeline and the CLI/metrics/store layers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the kind of milestone an Event represents.
type Stage string

// Crawl lifecycle and per-page milestones.
const (
	// StageStart is emitted once when a crawl begins.
	StageStart Stage = "START"
	// StagePageFound marks a page dequeued and loaded.
	StagePageFound Stage = "PAGE_FOUND"
	// StageAIChecking marks an oracle classification in flight.
	StageAIChecking Stage = "AI_CHECKING"
	// StageScreenshot marks one captured artifact (per device or state).
	StageScreenshot Stage = "SCREENSHOT"
	// StagePageCaptured marks a page committed to the report with at least
	// one artifact written; emitted once per captured page.
	StagePageCaptured Stage = "PAGE_CAPTURED"
	// StageSkipped marks a page the classifier declined to capture.
	StageSkipped Stage = "SKIPPED"
	// StageDesignTokens marks the once-per-crawl design token extraction.
	StageDesignTokens Stage = "DESIGN_EXTRACTING"
	// StageImagesDownload marks the once-per-crawl asset download.
	StageImagesDownload Stage = "IMAGES_DOWNLOADING"
	// StagePageError marks a per-page failure; the crawl continues.
	StagePageError Stage = "PAGE_ERROR"
	// StageStopping marks a graceful stop request taking effect.
	StageStopping Stage = "STOPPING"
	// StageLimitReached marks the max-pages cap firing; emitted once.
	StageLimitReached Stage = "LIMIT_REACHED"
	// StageAllRequiredFound marks the template finder completing its
	// required type set.
	StageAllRequiredFound Stage = "ALL_REQUIRED_FOUND"
	// StageComplete is emitted once when the crawl finishes.
	StageComplete Stage = "COMPLETE"
)

// Event captures a single crawl milestone.
type Event struct {
	// CrawlID identifies the crawl run in 16-byte UUID form.
	CrawlID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone kind.
	Stage Stage
	// Site is the crawled host.
	Site string
	// URL is the page the milestone concerns, when page-scoped.
	URL string
	// Device labels screenshot events (desktop/mobile/tablet or a state
	// name for interactive captures).
	Device string
	// PageType carries the template classification outcome, when any.
	PageType string
	// Captured is the running count of captured pages at emit time.
	Captured int64
	// Dur is the elapsed time for the milestone, when measured.
	Dur time.Duration
	// Note holds low-volume context such as error text.
	Note string
}

// Validate performs coarse validation before an event enters the hub.
func (e Event) Validate() error {
	if e.CrawlID == [16]byte{} {
		return errors.New("crawl id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageStart, StageStopping, StageLimitReached, StageAllRequiredFound, StageComplete:
	case StageDesignTokens, StageImagesDownload:
	case StagePageFound, StageAIChecking, StageScreenshot, StagePageCaptured, StageSkipped, StagePageError:
		if e.URL == "" {
			return fmt.Errorf("stage %s requires a url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// CrawlUUID converts the binary crawl ID to uuid.UUID for repositories.
func (e Event) CrawlUUID() uuid.UUID {
	return uuid.UUID(e.CrawlID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
