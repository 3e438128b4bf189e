package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/pipeline"
	"github.com/sells-group/esg-research/internal/store"
	"github.com/sells-group/esg-research/pkg/edgar"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "data/observations.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initFetcher() fetcher.Fetcher {
	return &fetcher.SchemeFetcher{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.EDGAR.UserAgent,
			MaxRetries: 3,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	}
}

func initEDGAR() edgar.Client {
	var opts []edgar.Option
	if cfg.EDGAR.BaseURL != "" {
		opts = append(opts, edgar.WithBaseURL(cfg.EDGAR.BaseURL))
	}
	if cfg.EDGAR.DataURL != "" {
		opts = append(opts, edgar.WithDataURL(cfg.EDGAR.DataURL))
	}
	return edgar.NewClient(cfg.EDGAR.UserAgent, opts...)
}

// newPipeline builds a pipeline with a store when withStore is set and the
// HTTP clients every command may need.
func newPipeline(ctx context.Context, withStore bool) (*pipeline.Pipeline, func(), error) {
	var st store.Store
	cleanup := func() {}
	if withStore {
		s, err := initStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		st = s
		cleanup = func() { _ = s.Close() }
	}
	p := pipeline.New(cfg, st,
		pipeline.WithFetcher(initFetcher()),
		pipeline.WithEDGAR(initEDGAR()),
	)
	return p, cleanup, nil
}

// splitList parses a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
