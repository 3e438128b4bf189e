package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/esg-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The parent directory is created if missing.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create directory")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// one writer; WAL lets readers proceed while an ingest is running
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS firms (
	firm_key      TEXT PRIMARY KEY,
	ticker        TEXT NOT NULL DEFAULT '',
	cik           TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL,
	sector        TEXT NOT NULL DEFAULT '',
	is_ai_builder INTEGER NOT NULL DEFAULT 0,
	active        INTEGER NOT NULL DEFAULT 1,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	firm_key   TEXT NOT NULL,
	year       INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	source     TEXT NOT NULL,
	value      REAL,
	confidence TEXT NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	loaded_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (firm_key, year, metric, source)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source       TEXT NOT NULL,
	run_id       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_observations_metric ON observations(metric);
CREATE INDEX IF NOT EXISTS idx_sync_log_source ON sync_log(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertFirms(ctx context.Context, firms []model.Firm) error {
	if len(firms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin firms tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO firms (firm_key, ticker, cik, name, sector, is_ai_builder, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(firm_key) DO UPDATE SET
			ticker = excluded.ticker, cik = excluded.cik, name = excluded.name,
			sector = excluded.sector, is_ai_builder = excluded.is_ai_builder,
			active = excluded.active, updated_at = excluded.updated_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare firm upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, f := range firms {
		if _, err := stmt.ExecContext(ctx, f.Key, f.Ticker, f.CIK, f.Name, f.Sector, f.IsAIBuilder, f.Active, now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert firm %s", f.Key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit firms")
}

func (s *SQLiteStore) ListFirms(ctx context.Context) ([]model.Firm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT firm_key, ticker, cik, name, sector, is_ai_builder, active FROM firms ORDER BY firm_key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list firms")
	}
	defer rows.Close() //nolint:errcheck

	var firms []model.Firm
	for rows.Next() {
		var f model.Firm
		if err := rows.Scan(&f.Key, &f.Ticker, &f.CIK, &f.Name, &f.Sector, &f.IsAIBuilder, &f.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan firm")
		}
		firms = append(firms, f)
	}
	return firms, eris.Wrap(rows.Err(), "sqlite: iterate firms")
}

func (s *SQLiteStore) UpsertObservations(ctx context.Context, obs []model.Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin observations tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (firm_key, year, metric, source, value, confidence, run_id, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(firm_key, year, metric, source) DO UPDATE SET
			value = excluded.value, confidence = excluded.confidence,
			run_id = excluded.run_id, loaded_at = excluded.loaded_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare observation upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, o := range obs {
		loaded := o.LoadedAt
		if loaded.IsZero() {
			loaded = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx, o.FirmKey, o.Year, string(o.Metric), o.Source,
			o.Value, string(o.Confidence), o.RunID, loaded)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert observation %s/%d/%s/%s", o.FirmKey, o.Year, o.Metric, o.Source)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit observations")
	}
	return n, nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error) {
	query := `SELECT firm_key, year, metric, source, value, confidence, run_id, loaded_at FROM observations`
	var where []string
	var args []any
	if len(filter.Metrics) > 0 {
		where = append(where, "metric IN ("+placeholders(len(filter.Metrics))+")")
		for _, m := range filter.Metrics {
			args = append(args, string(m))
		}
	}
	if len(filter.Sources) > 0 {
		where = append(where, "source IN ("+placeholders(len(filter.Sources))+")")
		for _, src := range filter.Sources {
			args = append(args, src)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY firm_key, year, metric, source"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list observations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Observation
	for rows.Next() {
		var o model.Observation
		var metric, confidence string
		var value sql.NullFloat64
		if err := rows.Scan(&o.FirmKey, &o.Year, &metric, &o.Source, &value, &confidence, &o.RunID, &o.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		o.Metric = model.Metric(metric)
		o.Confidence = model.Confidence(confidence)
		if value.Valid {
			o.Value = model.Float(value.Float64)
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

func (s *SQLiteStore) StartSync(ctx context.Context, source, runID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (source, run_id, status, started_at) VALUES (?, ?, ?, ?)`,
		source, runID, SyncRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start sync for %s", source)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: sync id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteSync(ctx context.Context, id int64, rows int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, rows_synced = ? WHERE id = ?`,
		SyncComplete, time.Now().UTC(), rows, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete sync %d", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) FailSync(ctx context.Context, id int64, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		SyncFailed, time.Now().UTC(), msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail sync %d", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) ListSyncs(ctx context.Context) ([]SyncEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, run_id, status, started_at, completed_at, rows_synced, error
		 FROM sync_log ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []SyncEntry
	for rows.Next() {
		var e SyncEntry
		var completedAt sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Source, &e.RunID, &e.Status, &e.StartedAt, &completedAt, &e.RowsSynced, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync entry")
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate syncs")
}

// LastSuccess returns when the source last completed a sync, or nil if it never has.
func (s *SQLiteStore) LastSuccess(ctx context.Context, source string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM sync_log
		 WHERE source = ? AND status = ?
		 ORDER BY started_at DESC, id DESC LIMIT 1`,
		source, SyncComplete,
	).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last success for %s", source)
	}
	return &t, nil
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("sync entry not found: %d", id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
