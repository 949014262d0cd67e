package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clerasense/drugfacts-cli/internal/ingest"
	"github.com/clerasense/drugfacts-cli/internal/lookup"
	"github.com/clerasense/drugfacts-cli/internal/source"
	"github.com/clerasense/drugfacts-cli/internal/store"
	"github.com/clerasense/drugfacts-cli/pkg/openai"
)

// env bundles the wired subsystems shared by the subcommands.
type env struct {
	store    store.Store
	registry *source.Registry
	pipeline *ingest.Pipeline
	lookup   *lookup.Service
}

func (e *env) Close() {
	_ = e.store.Close()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "drugfacts.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the store, the four source adapters, the ingestion pipeline,
// and the lookup service.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := source.NewRegistry()
	reg.Register(source.NewOpenFDA(cfg.Sources.OpenFDA))
	reg.Register(source.NewDailyMed(cfg.Sources.DailyMed))
	reg.Register(source.NewRxNorm(cfg.Sources.RxNorm))
	reg.Register(source.NewNADAC(cfg.Sources.NADAC))

	var embedder openai.Client
	if cfg.Embedding.APIKey != "" {
		embedder = openai.NewClient(cfg.Embedding.APIKey,
			openai.WithBaseURL(cfg.Embedding.BaseURL),
			openai.WithModel(cfg.Embedding.Model),
		)
	}

	pipeline := ingest.NewPipeline(st, reg, embedder,
		time.Duration(cfg.Ingest.AdapterTimeoutSecs)*time.Second)
	svc := lookup.NewService(st, pipeline, reg, cfg.Ingest.LookupWorkers)

	return &env{
		store:    st,
		registry: reg,
		pipeline: pipeline,
		lookup:   svc,
	}, nil
}
