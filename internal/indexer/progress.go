package indexer

import (
	"go.uber.org/zap"

	"github.com/bitebase/catalog-cli/internal/model"
)

// Phase names for sink events.
const (
	PhaseStarting  = "starting"
	PhaseIndexing  = "indexing"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Event is one progress update from a single adapter's run.
type Event struct {
	Source   model.Source
	Phase    string
	Progress model.Progress
	Outcome  model.Outcome
	Name     string
	Err      error
}

// Sink receives progress events. Implementations must tolerate concurrent
// calls; one run fans out across adapters.
type Sink interface {
	Publish(e Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// LogSink writes each event through the global logger.
type LogSink struct{}

func (LogSink) Publish(e Event) {
	fields := []zap.Field{
		zap.String("source", string(e.Source)),
		zap.String("phase", e.Phase),
	}
	switch e.Phase {
	case PhaseIndexing:
		fields = append(fields,
			zap.String("name", e.Name),
			zap.String("outcome", string(e.Outcome)),
			zap.Float64("percent", e.Progress.Percent),
		)
		zap.L().Debug("indexing record", fields...)
	case PhaseFailed:
		fields = append(fields, zap.Error(e.Err))
		zap.L().Warn("source run failed", fields...)
	default:
		zap.L().Info("source run", fields...)
	}
}
