package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/animflow/internal/model"
)

// BakeRun describes one bake of a composition.
type BakeRun struct {
	ID            string
	CompositionID string
	Fingerprint   string
	FirstFrame    int
	LastFrame     int
	Seq           int64
}

// NoArrayIndex marks a computed (non-array) value.
const NoArrayIndex = -1

// BakedValue is one property value at one frame.
type BakedValue struct {
	Frame      int
	PropertyID string
	ArrayIndex int // NoArrayIndex for computed values
	Value      model.Value
}

// BakeError is a composition error raised during a bake.
type BakeError struct {
	Frame         int
	Pass          int64
	Code          string
	CompositionID string
	NodeID        string
	PropertyID    string
	Message       string
}

// txWriter writes one bake inside a transaction.
type txWriter struct {
	tx     *sql.Tx
	values *sql.Stmt
	errors *sql.Stmt
}

func (s *Store) beginBake(ctx context.Context) (*txWriter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bake: %w", err)
	}
	values, err := tx.PrepareContext(ctx, `
		INSERT INTO baked_values
		(run_id, frame, property_id, array_index, kind, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, frame, property_id, array_index) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("prepare baked_values: %w", err)
	}
	errs, err := tx.PrepareContext(ctx, `
		INSERT INTO bake_errors
		(run_id, frame, pass, code, composition, node_id, property_id, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		values.Close()
		tx.Rollback()
		return nil, fmt.Errorf("prepare bake_errors: %w", err)
	}
	return &txWriter{tx: tx, values: values, errors: errs}, nil
}

// writeRun inserts the run row. Seq is assigned here as one past the highest
// seq in the store.
func (w *txWriter) writeRun(ctx context.Context, run *BakeRun) error {
	if err := w.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM bake_runs`).Scan(&run.Seq); err != nil {
		return fmt.Errorf("write run: next seq: %w", err)
	}
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO bake_runs
		(id, composition_id, fingerprint, first_frame, last_frame, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.CompositionID,
		run.Fingerprint,
		run.FirstFrame,
		run.LastFrame,
		run.Seq,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

func (w *txWriter) writeValue(ctx context.Context, runID string, v BakedValue) error {
	kind, data, err := marshalValue(v.Value)
	if err != nil {
		return fmt.Errorf("write value %s@%d: %w", v.PropertyID, v.Frame, err)
	}
	if _, err := w.values.ExecContext(ctx, runID, v.Frame, v.PropertyID, v.ArrayIndex, kind, data); err != nil {
		return fmt.Errorf("write value %s@%d: %w", v.PropertyID, v.Frame, err)
	}
	return nil
}

func (w *txWriter) writeError(ctx context.Context, runID string, e BakeError) error {
	_, err := w.errors.ExecContext(ctx,
		runID, e.Frame, e.Pass, e.Code, e.CompositionID, e.NodeID, e.PropertyID, e.Message)
	if err != nil {
		return fmt.Errorf("write bake error: %w", err)
	}
	return nil
}

func (w *txWriter) commit() error {
	w.values.Close()
	w.errors.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit bake: %w", err)
	}
	return nil
}

func (w *txWriter) rollback() {
	w.values.Close()
	w.errors.Close()
	w.tx.Rollback()
}

// DeleteRun removes a run and, through the foreign keys, its values and
// errors. Deleting a missing run is not an error.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bake_runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
