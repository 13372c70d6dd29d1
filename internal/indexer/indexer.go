// Package indexer runs the ingestion pipeline: it fans out across configured
// source adapters, normalizes their paginated search results, and resolves
// each record against the catalog as an update, merge, or create.
package indexer

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitebase/catalog-cli/internal/adapter"
	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/model"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// Options tunes one indexing run.
type Options struct {
	// Limit caps the number of records ingested per adapter; <= 0 means no
	// cap. Each adapter gets the full limit independently.
	Limit int

	// Categories narrows the search on sources that support it.
	Categories []string

	// Sources restricts the run to the named sources; empty means every
	// configured adapter.
	Sources []model.Source
}

// SourceResult is one adapter's outcome within a run.
type SourceResult struct {
	Source model.Source      `json:"source"`
	Stats  model.IngestStats `json:"stats"`
	Err    error             `json:"-"`
}

// Result aggregates a full run.
type Result struct {
	Location string            `json:"location"`
	Stats    model.IngestStats `json:"stats"`
	Sources  []SourceResult    `json:"sources"`
}

// Failed reports whether every adapter in the run failed.
func (r *Result) Failed() bool {
	if len(r.Sources) == 0 {
		return true
	}
	for _, s := range r.Sources {
		if s.Err == nil {
			return false
		}
	}
	return true
}

// Indexer coordinates adapters, matching, and catalog writes.
type Indexer struct {
	store    catalog.Store
	registry *adapter.Registry
	sink     Sink

	// mu serializes the match-then-write section. Two concurrent adapters
	// must not both miss the same candidate lookup and create twins.
	mu sync.Mutex
}

// New creates an Indexer. A nil sink discards progress events.
func New(store catalog.Store, registry *adapter.Registry, sink Sink) *Indexer {
	if sink == nil {
		sink = NopSink{}
	}
	return &Indexer{store: store, registry: registry, sink: sink}
}

// Run ingests one location across the selected adapters. Adapter failures are
// isolated: a source that errors (including an exhausted request budget)
// reports its partial stats while the others run to completion. The returned
// error is non-nil only when no adapter could run at all.
func (ix *Indexer) Run(ctx context.Context, location string, opts Options) (*Result, error) {
	adapters, err := ix.selectAdapters(opts.Sources)
	if err != nil {
		return nil, err
	}

	results := make([]SourceResult, len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = ix.runAdapter(gctx, a, location, opts)
			return nil
		})
	}
	_ = g.Wait() // per-adapter errors live in results

	res := &Result{Location: location, Stats: model.IngestStats{Limit: opts.Limit}}
	for _, sr := range results {
		res.Sources = append(res.Sources, sr)
		res.Stats.Total += sr.Stats.Total
		res.Stats.Created += sr.Stats.Created
		res.Stats.Updated += sr.Stats.Updated
		res.Stats.Merged += sr.Stats.Merged
		if sr.Stats.LimitReached {
			res.Stats.LimitReached = true
		}
	}
	if res.Failed() {
		return res, eris.New("indexer: all sources failed")
	}
	return res, nil
}

func (ix *Indexer) selectAdapters(sources []model.Source) ([]adapter.Adapter, error) {
	configured, err := ix.registry.Configured()
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return configured, nil
	}
	var out []adapter.Adapter
	for _, a := range configured {
		for _, s := range sources {
			if a.SourceName() == s {
				out = append(out, a)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, adapter.ErrNoAdapters
	}
	return out, nil
}

func (ix *Indexer) runAdapter(ctx context.Context, a adapter.Adapter, location string, opts Options) SourceResult {
	source := a.SourceName()
	sr := SourceResult{Source: source}
	sr.Stats.Limit = opts.Limit

	ix.sink.Publish(Event{Source: source, Phase: PhaseStarting})

	n, err := a.SearchAllBusinesses(ctx, location, opts.Categories, opts.Limit, func(rec model.SourceRecord, p model.Progress) error {
		ix.mu.Lock()
		outcome, serr := ix.storeBusiness(ctx, &rec, source, location)
		ix.mu.Unlock()
		if serr != nil {
			return serr
		}
		sr.Stats.Add(outcome)
		ix.sink.Publish(Event{
			Source:   source,
			Phase:    PhaseIndexing,
			Progress: p,
			Outcome:  outcome,
			Name:     rec.Name,
		})
		return nil
	})
	if opts.Limit > 0 && n >= opts.Limit {
		sr.Stats.LimitReached = true
	}
	if err != nil {
		sr.Err = err
		if eris.Is(err, quota.ErrRateLimited) {
			zap.L().Warn("request budget exhausted, stopping source",
				zap.String("source", string(source)),
				zap.Int("ingested", n),
			)
		}
		ix.sink.Publish(Event{Source: source, Phase: PhaseFailed, Err: err})
		return sr
	}

	ix.sink.Publish(Event{Source: source, Phase: PhaseCompleted, Progress: model.NewProgress(n, n)})
	return sr
}
