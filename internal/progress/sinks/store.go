package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/progress"
	"github.com/useneurox-company/sitesnap/internal/store"
)

// StoreSink persists crawl lifecycle and page counters through a
// store.CrawlRepository. Page outcomes are coalesced per batch so one database
// round trip covers many events.
type StoreSink struct {
	repo   store.CrawlRepository
	logger *zap.Logger
}

// NewStoreSink wires a crawl repository to the sink interface.
func NewStoreSink(repo store.CrawlRepository, logger *zap.Logger) (*StoreSink, error) {
	if repo == nil {
		return nil, fmt.Errorf("crawl repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}, nil
}

type pageDeltas struct {
	captured int64
	skipped  int64
	errored  int64
}

// Consume writes lifecycle transitions immediately and page-count deltas once
// per (crawl, batch). A failed write aborts the batch so the hub can log it.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	deltas := make(map[uuid.UUID]*pageDeltas)
	for _, evt := range batch {
		id := evt.CrawlUUID()
		switch evt.Stage {
		case progress.StageStart:
			if err := s.repo.StartCrawl(ctx, id, evt.Site, evt.TS); err != nil {
				return fmt.Errorf("start crawl %s: %w", id, err)
			}
		case progress.StageComplete:
			if err := s.flushDeltas(ctx, id, deltas); err != nil {
				return err
			}
			status := store.CrawlSuccess
			var errMsg *string
			if evt.Note != "" {
				status = store.CrawlError
				note := evt.Note
				errMsg = &note
			}
			if err := s.repo.CompleteCrawl(ctx, id, evt.TS, status, errMsg); err != nil {
				return fmt.Errorf("complete crawl %s: %w", id, err)
			}
		case progress.StagePageFound, progress.StageScreenshot:
			// Found and per-artifact milestones; a page only counts as
			// captured on PAGE_CAPTURED.
		case progress.StagePageCaptured:
			delta(deltas, id).captured++
		case progress.StageSkipped:
			delta(deltas, id).skipped++
		case progress.StagePageError:
			delta(deltas, id).errored++
		}
	}
	for id := range deltas {
		if err := s.flushDeltas(ctx, id, deltas); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flushDeltas(ctx context.Context, id uuid.UUID, deltas map[uuid.UUID]*pageDeltas) error {
	d, ok := deltas[id]
	if !ok {
		return nil
	}
	delete(deltas, id)
	if err := s.repo.AddPageCounts(ctx, id, d.captured, d.skipped, d.errored); err != nil {
		return fmt.Errorf("add page counts for crawl %s: %w", id, err)
	}
	return nil
}

func delta(deltas map[uuid.UUID]*pageDeltas, id uuid.UUID) *pageDeltas {
	d, ok := deltas[id]
	if !ok {
		d = &pageDeltas{}
		deltas[id] = d
	}
	return d
}

// Close implements the Sink interface; the repository is owned by the caller.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
