// Package sqlite archives collected readings in a SQLite database. The archive
// has its own retention (archive.retention_seconds, unbounded by default), so
// it can hold history the JSON dataset has already pruned; the readings API
// falls back to it for ranges older than the dataset.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/i474232898/airq/internal/airquality"
)

const driverName = "sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	station      TEXT    NOT NULL,
	city         TEXT    NOT NULL DEFAULT '',
	state        TEXT    NOT NULL DEFAULT '',
	country      TEXT    NOT NULL DEFAULT '',
	pollutant_id TEXT    NOT NULL,
	ts           INTEGER NOT NULL,
	min          REAL    NOT NULL,
	max          REAL    NOT NULL,
	avg          REAL    NOT NULL,
	unit         TEXT    NOT NULL DEFAULT '',
	UNIQUE (station, ts, pollutant_id)
);
CREATE INDEX IF NOT EXISTS readings_ts ON readings (ts);
`

const insertReading = `
INSERT OR IGNORE INTO readings
	(station, city, state, country, pollutant_id, ts, min, max, avg, unit)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Archive stores readings keyed by (station, ts, pollutant_id). A reading
// that is already archived is left untouched.
type Archive struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating when needed) the database at path and applies the
// schema. Plain paths get WAL journaling and a busy timeout; ":memory:" and
// "file:" DSNs are used as given.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Archive{db: db, logger: logger.Named("archive")}, nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path), nil
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Store archives every reading of ds in one transaction and returns how many
// rows were new.
func (a *Archive) Store(ctx context.Context, ds *airquality.Dataset) (int64, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertReading)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, st := range ds.Stations() {
		for _, ts := range st.Timestamps() {
			for _, r := range st.Bucket(ts) {
				res, err := stmt.ExecContext(ctx,
					st.Name, st.City, st.State, st.Country,
					r.ID, ts, r.Min, r.Max, r.Avg, r.Unit)
				if err != nil {
					return 0, fmt.Errorf("insert %s/%d/%s: %w", st.Name, ts, r.ID, err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return 0, fmt.Errorf("rows affected: %w", err)
				}
				inserted += n
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	a.logger.Debug("readings archived", zap.Int64("inserted", inserted))
	return inserted, nil
}

// PruneBefore deletes archived readings collected before cutoff.
func (a *Archive) PruneBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM readings WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return res.RowsAffected()
}

// Readings returns archived readings of one pollutant at a station collected
// within [from, to] (epoch seconds), oldest first.
func (a *Archive) Readings(ctx context.Context, station, pollutant string, from, to int64) ([]airquality.PollutantRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
SELECT pollutant_id, ts, min, max, avg, unit
FROM readings
WHERE station = ? AND pollutant_id = ? AND ts BETWEEN ? AND ?
ORDER BY ts`, station, pollutant, from, to)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []airquality.PollutantRecord
	for rows.Next() {
		r := airquality.PollutantRecord{StationName: station}
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Min, &r.Max, &r.Avg, &r.Unit); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
