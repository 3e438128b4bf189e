package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-research/internal/db"
	"github.com/sells-group/esg-research/internal/model"
)

// PostgresStore implements Store using pgxpool. Bulk writes go through db.BulkUpsert.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS firms (
	firm_key      TEXT PRIMARY KEY,
	ticker        TEXT NOT NULL DEFAULT '',
	cik           TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL,
	sector        TEXT NOT NULL DEFAULT '',
	is_ai_builder BOOLEAN NOT NULL DEFAULT false,
	active        BOOLEAN NOT NULL DEFAULT true,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	firm_key   TEXT NOT NULL,
	year       INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	source     TEXT NOT NULL,
	value      DOUBLE PRECISION,
	confidence TEXT NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	loaded_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (firm_key, year, metric, source)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           BIGSERIAL PRIMARY KEY,
	source       TEXT NOT NULL,
	run_id       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	rows_synced  BIGINT NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_metric ON observations(metric);
CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source);
`

var (
	firmUpsert = db.UpsertConfig{
		Table:        "firms",
		Columns:      []string{"firm_key", "ticker", "cik", "name", "sector", "is_ai_builder", "active", "updated_at"},
		ConflictKeys: []string{"firm_key"},
	}
	observationUpsert = db.UpsertConfig{
		Table:        "observations",
		Columns:      []string{"firm_key", "year", "metric", "source", "value", "confidence", "run_id", "loaded_at"},
		ConflictKeys: []string{"firm_key", "year", "metric", "source"},
	}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertFirms(ctx context.Context, firms []model.Firm) error {
	now := time.Now().UTC()
	rows := make([][]any, len(firms))
	for i, f := range firms {
		rows[i] = []any{f.Key, f.Ticker, f.CIK, f.Name, f.Sector, f.IsAIBuilder, f.Active, now}
	}
	_, err := db.BulkUpsert(ctx, s.pool, firmUpsert, rows)
	return eris.Wrap(err, "postgres: upsert firms")
}

func (s *PostgresStore) ListFirms(ctx context.Context) ([]model.Firm, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT firm_key, ticker, cik, name, sector, is_ai_builder, active FROM firms ORDER BY firm_key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list firms")
	}
	defer rows.Close()

	var firms []model.Firm
	for rows.Next() {
		var f model.Firm
		if err := rows.Scan(&f.Key, &f.Ticker, &f.CIK, &f.Name, &f.Sector, &f.IsAIBuilder, &f.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan firm")
		}
		firms = append(firms, f)
	}
	return firms, eris.Wrap(rows.Err(), "postgres: iterate firms")
}

func (s *PostgresStore) UpsertObservations(ctx context.Context, obs []model.Observation) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(obs))
	for i, o := range obs {
		loaded := o.LoadedAt
		if loaded.IsZero() {
			loaded = now
		}
		rows[i] = []any{o.FirmKey, o.Year, string(o.Metric), o.Source, o.Value, string(o.Confidence), o.RunID, loaded}
	}
	n, err := db.BulkUpsert(ctx, s.pool, observationUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert observations")
	}
	return n, nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error) {
	metrics := make([]string, len(filter.Metrics))
	for i, m := range filter.Metrics {
		metrics[i] = string(m)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT firm_key, year, metric, source, value, confidence, run_id, loaded_at
		 FROM observations
		 WHERE (cardinality($1::text[]) = 0 OR metric = ANY($1))
		   AND (cardinality($2::text[]) = 0 OR source = ANY($2))
		 ORDER BY firm_key, year, metric, source`,
		metrics, append([]string{}, filter.Sources...),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var metric, confidence string
		if err := rows.Scan(&o.FirmKey, &o.Year, &metric, &o.Source, &o.Value, &confidence, &o.RunID, &o.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		o.Metric = model.Metric(metric)
		o.Confidence = model.Confidence(confidence)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

func (s *PostgresStore) StartSync(ctx context.Context, source, runID string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_log (source, run_id, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		source, runID,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start sync for %s", source)
	}
	return id, nil
}

func (s *PostgresStore) CompleteSync(ctx context.Context, id int64, rows int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'complete', completed_at = now(), rows_synced = $1 WHERE id = $2`,
		rows, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete sync %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync entry not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) FailSync(ctx context.Context, id int64, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sync_log SET status = 'failed', completed_at = now(), error = $1 WHERE id = $2`,
		msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail sync %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("sync entry not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ListSyncs(ctx context.Context) ([]SyncEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, run_id, status, started_at, completed_at, rows_synced, error
		 FROM sync_log ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var entries []SyncEntry
	for rows.Next() {
		var e SyncEntry
		var errStr *string
		if err := rows.Scan(&e.ID, &e.Source, &e.RunID, &e.Status, &e.StartedAt, &e.CompletedAt, &e.RowsSynced, &errStr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate syncs")
}

// LastSuccess returns when the source last completed a sync, or nil if it never has.
func (s *PostgresStore) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM sync_log
		 WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last success for %s", source)
	}
	return &t, nil
}
