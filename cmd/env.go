package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/bitebase/catalog-cli/internal/adapter"
	"github.com/bitebase/catalog-cli/internal/catalog"
	"github.com/bitebase/catalog-cli/internal/indexer"
	"github.com/bitebase/catalog-cli/internal/quota"
)

// env bundles the wired components every command starts from.
type env struct {
	Store    catalog.Store
	Ledger   quota.Ledger
	Registry *adapter.Registry
}

// initEnv opens the configured store, shares its connection with the quota
// ledger, runs migrations, and registers all source adapters.
func initEnv(ctx context.Context) (*env, error) {
	store, ledger, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := adapter.NewRegistry()
	reg.Register(adapter.NewYelp(cfg.Yelp, ledger))
	reg.Register(adapter.NewGooglePlaces(cfg.Google, ledger))
	reg.Register(adapter.NewTripAdvisor(cfg.TripAdvisor, ledger))
	reg.Register(adapter.NewInstagram(cfg.Instagram, ledger))

	return &env{Store: store, Ledger: ledger, Registry: reg}, nil
}

func initStore(ctx context.Context) (catalog.Store, quota.Ledger, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		store, err := catalog.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		ledger := quota.NewSQLite(store.DB())
		if err := ledger.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, ledger, nil

	case "postgres":
		store, err := catalog.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		ledger := quota.NewPostgres(store.Pool())
		if err := ledger.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, ledger, nil

	default:
		return nil, nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// newIndexer builds the default indexer with log-based progress reporting.
func (e *env) newIndexer() *indexer.Indexer {
	return indexer.New(e.Store, e.Registry, indexer.LogSink{})
}
