package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/resolve"
	"github.com/sells-group/esg-research/internal/store"
)

// Engine loads sources, resolves their records, and upserts the resulting
// observations. Each source load is recorded in the store's sync log.
type Engine struct {
	store    store.Store
	resolver *resolve.Resolver
	reg      *Registry
	env      Env
	runID    string
	now      func() time.Time
}

// RunOpts configures which sources to load.
type RunOpts struct {
	Sources []string // restrict to these sources; empty means all
}

// LoadResult is the outcome of loading one source.
type LoadResult struct {
	Source     string `json:"source" yaml:"source"`
	Loaded     int    `json:"loaded" yaml:"loaded"`
	Resolved   int    `json:"resolved" yaml:"resolved"`
	Unresolved int    `json:"unresolved" yaml:"unresolved"`
	Duplicates int    `json:"duplicates" yaml:"duplicates"`
	Upserted   int64  `json:"upserted" yaml:"upserted"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewEngine creates a new ingest engine.
func NewEngine(st store.Store, resolver *resolve.Resolver, reg *Registry, env Env, runID string) *Engine {
	return &Engine{
		store:    st,
		resolver: resolver,
		reg:      reg,
		env:      env,
		runID:    runID,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Run loads the selected sources in order. A failing source is logged, marked
// failed in the sync log, and skipped. The run fails with
// model.ErrNoResolvableInput only when no source yields a single resolved
// observation.
func (e *Engine) Run(ctx context.Context, opts RunOpts) ([]LoadResult, error) {
	log := zap.L().With(zap.String("component", "source.engine"), zap.String("run_id", e.runID))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sources, err := e.reg.Select(opts.Sources)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		log.Info("no sources selected")
		return nil, nil
	}

	if e.env.Roster != nil {
		if err := e.store.UpsertFirms(ctx, e.env.Roster.Firms()); err != nil {
			return nil, eris.Wrap(err, "engine: upsert roster")
		}
	}

	log.Info("selected sources", zap.Int("count", len(sources)))

	var (
		results  []LoadResult
		resolved int
		failed   int
	)
	for _, src := range sources {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		srcLog := log.With(zap.String("source", src.Name()), zap.String("kind", string(src.Kind())))
		srcLog.Info("starting load")

		syncID, err := e.store.StartSync(ctx, src.Name(), e.runID)
		if err != nil {
			return results, eris.Wrapf(err, "engine: start sync log for %s", src.Name())
		}

		start := time.Now()
		res, err := e.load(ctx, src)
		elapsed := time.Since(start)
		if err != nil {
			srcLog.Error("load failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.store.FailSync(ctx, syncID, err.Error()); logErr != nil {
				srcLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			res.Error = err.Error()
			results = append(results, res)
			failed++
			continue
		}

		if err := e.store.CompleteSync(ctx, syncID, res.Upserted); err != nil {
			srcLog.Error("failed to record sync completion", zap.Error(err))
		}
		srcLog.Info("load complete",
			zap.Int("loaded", res.Loaded),
			zap.Int("resolved", res.Resolved),
			zap.Int("unresolved", res.Unresolved),
			zap.Int64("upserted", res.Upserted),
			zap.Duration("elapsed", elapsed),
		)
		resolved += res.Resolved
		results = append(results, res)
	}

	log.Info("engine run complete",
		zap.Int("sources", len(sources)),
		zap.Int("failed", failed),
		zap.Int("resolved", resolved),
	)
	if resolved == 0 {
		return results, eris.Wrap(model.ErrNoResolvableInput, "engine: run")
	}
	return results, nil
}

// load runs one source through resolution and into the store.
func (e *Engine) load(ctx context.Context, src Source) (LoadResult, error) {
	res := LoadResult{Source: src.Name()}

	recs, err := src.Load(ctx, e.env)
	if err != nil {
		return res, err
	}
	res.Loaded = len(recs)

	loadedAt := e.now()
	seen := make(map[model.ObservationKey]bool, len(recs))
	obs := make([]model.Observation, 0, len(recs))
	for _, rec := range recs {
		r := e.resolver.Resolve(rec)
		if !r.Resolved() {
			res.Unresolved++
			continue
		}
		res.Resolved++

		o := model.Observation{
			FirmKey:    r.FirmKey,
			Year:       rec.Year,
			Metric:     rec.Metric,
			Value:      rec.Value,
			Source:     src.Name(),
			Confidence: rec.Confidence,
			RunID:      e.runID,
			LoadedAt:   loadedAt,
		}
		// two raw rows resolving to the same firm: the first row in file order wins
		if seen[o.Key()] {
			res.Duplicates++
			continue
		}
		seen[o.Key()] = true
		obs = append(obs, o)
	}
	e.env.Summary.Add(model.StageResolve, model.ReasonDuplicate, res.Duplicates)

	n, err := e.store.UpsertObservations(ctx, obs)
	if err != nil {
		return res, eris.Wrapf(err, "engine: upsert %s observations", src.Name())
	}
	res.Upserted = n
	return res, nil
}
