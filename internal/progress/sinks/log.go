// Package sinks provides progress.Sink implementations: structured logs,
// Prometheus metrics, and the crawl-history store.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/progress"
)

// LogSink renders progress events as structured logs. It doubles as the CLI's
// live feedback channel during a crawl.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.String("site", evt.Site),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Device != "" {
			fields = append(fields, zap.String("device", evt.Device))
		}
		if evt.PageType != "" {
			fields = append(fields, zap.String("page_type", evt.PageType))
		}
		if evt.Captured > 0 {
			fields = append(fields, zap.Int64("captured", evt.Captured))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StagePageError {
			s.logger.Warn("crawl progress", fields...)
			continue
		}
		s.logger.Info("crawl progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
