package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hls-preload/internal/logging"
)

// ErrResultNotFound is returned when no perf-test result has the given ID.
var ErrResultNotFound = errors.New("perf-test result not found")

// DefaultListLimit bounds ListResults when the caller passes no limit.
const DefaultListLimit = 50

const perfTestColumns = `id, url, kind, strategy, status, started_at, window_ms,
	load_time_ms, first_data_ms, bytes, segments, events, error`

// SaveResult inserts or replaces a perf-test result.
func (d *Database) SaveResult(ctx context.Context, r *PerfTestResult) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_result", start, err) }()

	if r == nil || r.ID == "" {
		err = errors.New("perf-test result requires an ID")
		return err
	}

	events := r.Events
	if events == nil {
		events = []PerfTestEvent{}
	}
	var encoded []byte
	encoded, err = json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	err = d.insertResult(ctx, r, string(encoded))
	if err != nil {
		return err
	}

	if lastErr := d.setLastRun(ctx, r.StartedAt); lastErr != nil {
		logging.Warn("Failed to record last perf-test run: %v", lastErr)
	}
	return nil
}

func (d *Database) insertResult(ctx context.Context, r *PerfTestResult, events string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO perf_tests (`+perfTestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			kind = excluded.kind,
			strategy = excluded.strategy,
			status = excluded.status,
			started_at = excluded.started_at,
			window_ms = excluded.window_ms,
			load_time_ms = excluded.load_time_ms,
			first_data_ms = excluded.first_data_ms,
			bytes = excluded.bytes,
			segments = excluded.segments,
			events = excluded.events,
			error = excluded.error
	`,
		r.ID,
		r.URL,
		r.Kind,
		r.Strategy,
		string(r.Status),
		r.StartedAt.UnixMilli(),
		r.WindowMillis,
		nullableMillis(r.LoadTimeMillis),
		nullableMillis(r.FirstDataMillis),
		r.BytesTransferred,
		r.SegmentsFetched,
		events,
		r.Error,
	)
	return err
}

// GetResult retrieves a single perf-test result by ID.
func (d *Database) GetResult(ctx context.Context, id string) (*PerfTestResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_result", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+perfTestColumns+` FROM perf_tests WHERE id = ?`, id)

	var r *PerfTestResult
	r, err = scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrResultNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListResults returns up to limit results, newest first. A non-positive
// limit uses DefaultListLimit.
func (d *Database) ListResults(ctx context.Context, limit int) ([]PerfTestResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_results", start, err) }()

	if limit <= 0 {
		limit = DefaultListLimit
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `
		SELECT `+perfTestColumns+`
		FROM perf_tests
		ORDER BY started_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]PerfTestResult, 0)
	for rows.Next() {
		var r *PerfTestResult
		r, err = scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	err = rows.Err()
	return results, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*PerfTestResult, error) {
	var (
		r          PerfTestResult
		status     string
		startedAt  int64
		loadTime   sql.NullInt64
		firstData  sql.NullInt64
		eventsJSON string
	)
	err := row.Scan(
		&r.ID, &r.URL, &r.Kind, &r.Strategy, &status, &startedAt, &r.WindowMillis,
		&loadTime, &firstData, &r.BytesTransferred, &r.SegmentsFetched, &eventsJSON, &r.Error,
	)
	if err != nil {
		return nil, err
	}

	r.Status = RunStatus(status)
	r.StartedAt = time.UnixMilli(startedAt).UTC()
	if loadTime.Valid {
		v := loadTime.Int64
		r.LoadTimeMillis = &v
	}
	if firstData.Valid {
		v := firstData.Int64
		r.FirstDataMillis = &v
	}
	if err := json.Unmarshal([]byte(eventsJSON), &r.Events); err != nil {
		return nil, fmt.Errorf("failed to decode events for %s: %w", r.ID, err)
	}
	if r.Events == nil {
		r.Events = []PerfTestEvent{}
	}
	return &r, nil
}

func nullableMillis(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
