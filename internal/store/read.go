package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("bake run not found")

// ReadRun returns the run with the given id.
func (s *Store) ReadRun(ctx context.Context, runID string) (BakeRun, error) {
	var run BakeRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, composition_id, fingerprint, first_frame, last_frame, seq
		FROM bake_runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.CompositionID, &run.Fingerprint, &run.FirstFrame, &run.LastFrame, &run.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return BakeRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return BakeRun{}, fmt.Errorf("read run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run of a composition, oldest first. An empty
// compositionID lists all runs.
func (s *Store) ListRuns(ctx context.Context, compositionID string) ([]BakeRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, composition_id, fingerprint, first_frame, last_frame, seq
		FROM bake_runs
		WHERE ? = '' OR composition_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, compositionID, compositionID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []BakeRun{}
	for rows.Next() {
		var run BakeRun
		if err := rows.Scan(&run.ID, &run.CompositionID, &run.Fingerprint, &run.FirstFrame, &run.LastFrame, &run.Seq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRunFor returns the newest run baked from a snapshot fingerprint.
func (s *Store) LatestRunFor(ctx context.Context, compositionID, fingerprint string) (BakeRun, error) {
	var run BakeRun
	err := s.db.QueryRowContext(ctx, `
		SELECT id, composition_id, fingerprint, first_frame, last_frame, seq
		FROM bake_runs
		WHERE composition_id = ? AND fingerprint = ?
		ORDER BY seq DESC
		LIMIT 1
	`, compositionID, fingerprint).Scan(&run.ID, &run.CompositionID, &run.Fingerprint, &run.FirstFrame, &run.LastFrame, &run.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return BakeRun{}, fmt.Errorf("%w: %s@%s", ErrRunNotFound, compositionID, fingerprint)
	}
	if err != nil {
		return BakeRun{}, fmt.Errorf("read latest run: %w", err)
	}
	return run, nil
}

// ReadFrame returns every value baked at one frame, ordered by property id
// then array index.
func (s *Store) ReadFrame(ctx context.Context, runID string, frame int) ([]BakedValue, error) {
	return s.readValues(ctx, `
		SELECT frame, property_id, array_index, kind, value
		FROM baked_values
		WHERE run_id = ? AND frame = ?
		ORDER BY property_id COLLATE BINARY ASC, array_index ASC
	`, runID, frame)
}

// ReadSeries returns one property's computed value at every baked frame,
// in frame order.
func (s *Store) ReadSeries(ctx context.Context, runID, propertyID string) ([]BakedValue, error) {
	return s.readValues(ctx, `
		SELECT frame, property_id, array_index, kind, value
		FROM baked_values
		WHERE run_id = ? AND property_id = ? AND array_index = -1
		ORDER BY frame ASC
	`, runID, propertyID)
}

// ReadArraySeries returns one property's array-modifier values at a frame,
// in index order.
func (s *Store) ReadArraySeries(ctx context.Context, runID, propertyID string, frame int) ([]BakedValue, error) {
	return s.readValues(ctx, `
		SELECT frame, property_id, array_index, kind, value
		FROM baked_values
		WHERE run_id = ? AND property_id = ? AND frame = ? AND array_index >= 0
		ORDER BY array_index ASC
	`, runID, propertyID, frame)
}

func (s *Store) readValues(ctx context.Context, query string, args ...any) ([]BakedValue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	values := []BakedValue{}
	for rows.Next() {
		var (
			v          BakedValue
			kind, data string
		)
		if err := rows.Scan(&v.Frame, &v.PropertyID, &v.ArrayIndex, &kind, &data); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		if v.Value, err = unmarshalValue(kind, data); err != nil {
			return nil, fmt.Errorf("value %s@%d: %w", v.PropertyID, v.Frame, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return values, nil
}

// ReadErrors returns the errors recorded during a run in pass order.
func (s *Store) ReadErrors(ctx context.Context, runID string) ([]BakeError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, pass, code, composition, node_id, property_id, message
		FROM bake_errors
		WHERE run_id = ?
		ORDER BY pass ASC, rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query bake errors: %w", err)
	}
	defer rows.Close()

	out := []BakeError{}
	for rows.Next() {
		var e BakeError
		if err := rows.Scan(&e.Frame, &e.Pass, &e.Code, &e.CompositionID, &e.NodeID, &e.PropertyID, &e.Message); err != nil {
			return nil, fmt.Errorf("scan bake error: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bake errors: %w", err)
	}
	return out, nil
}
