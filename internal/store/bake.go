package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/model"
)

// BakeOptions configures Bake.
type BakeOptions struct {
	// FirstFrame and LastFrame bound the baked range, inclusive. A negative
	// LastFrame means the composition's last frame.
	FirstFrame int
	LastFrame  int

	// IDs generates the run id. Default: UUIDv7Generator.
	IDs RunIDGenerator

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Engine options passed to the Manager.
	Engine []engine.Option
}

// Bake evaluates every frame of a composition and stores the computed
// values, array-modifier values and errors as one run. The run is written
// in a single transaction; a failure or cancelled ctx leaves no trace.
func (s *Store) Bake(ctx context.Context, snap *model.Snapshot, compositionID string, opts BakeOptions) (BakeRun, error) {
	comp, ok := snap.Compositions[compositionID]
	if !ok {
		return BakeRun{}, fmt.Errorf("bake: composition %q not found", compositionID)
	}
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	last := opts.LastFrame
	if last < 0 {
		last = comp.Length - 1
	}
	if last < opts.FirstFrame {
		return BakeRun{}, fmt.Errorf("bake: empty frame range [%d, %d]", opts.FirstFrame, last)
	}

	fingerprint, err := model.Fingerprint(snap)
	if err != nil {
		return BakeRun{}, fmt.Errorf("bake: %w", err)
	}
	run := BakeRun{
		ID:            opts.IDs.Generate(),
		CompositionID: compositionID,
		Fingerprint:   fingerprint,
		FirstFrame:    opts.FirstFrame,
		LastFrame:     last,
	}

	w, err := s.beginBake(ctx)
	if err != nil {
		return BakeRun{}, err
	}
	committed := false
	defer func() {
		if !committed {
			w.rollback()
		}
	}()

	if err := w.writeRun(ctx, &run); err != nil {
		return BakeRun{}, err
	}

	engineOpts := append([]engine.Option{engine.WithLogger(opts.Logger)}, opts.Engine...)
	m := engine.New(compositionID, snap, engineOpts...)
	defer m.Dispose()

	values, errs := 0, 0
	for frame := run.FirstFrame; frame <= run.LastFrame; frame++ {
		if err := ctx.Err(); err != nil {
			return BakeRun{}, err
		}
		m.OnFrameIndexChanged(frame)

		for _, v := range collect(m, snap, frame) {
			if err := w.writeValue(ctx, run.ID, v); err != nil {
				return BakeRun{}, err
			}
			values++
		}
		for _, e := range m.Errors() {
			be := BakeError{
				Frame:         frame,
				Pass:          e.Pass,
				Code:          string(e.Code),
				CompositionID: e.CompositionID,
				NodeID:        e.NodeID,
				PropertyID:    e.PropertyID,
				Message:       e.Message,
			}
			if err := w.writeError(ctx, run.ID, be); err != nil {
				return BakeRun{}, err
			}
			errs++
		}
	}

	if err := w.commit(); err != nil {
		return BakeRun{}, err
	}
	committed = true

	opts.Logger.Info("bake complete",
		"run", run.ID,
		"composition", compositionID,
		"frames", run.LastFrame-run.FirstFrame+1,
		"values", values,
		"errors", errs,
	)
	return run, nil
}

// collect gathers the values m holds at frame: computed values of every
// leaf, array-modifier values per index, then nested compositions.
func collect(m *engine.Manager, snap *model.Snapshot, frame int) []BakedValue {
	var out []BakedValue
	for _, layer := range snap.CompositionLayers(m.CompositionID()) {
		for _, p := range snap.LayerLeaves(layer.ID) {
			if v, ok := m.PropertyValue(p.ID); ok && v != nil {
				out = append(out, BakedValue{Frame: frame, PropertyID: p.ID, ArrayIndex: NoArrayIndex, Value: v})
			}
		}
		for _, g := range snap.ArrayModifierGroups(layer.ID) {
			n, ok := m.ArrayCount(g.ID)
			if !ok {
				continue
			}
			leaves, _ := snap.LeafIDs(g.ID)
			for _, leaf := range leaves {
				for i := 0; i < n; i++ {
					if v, ok := m.ArrayModifierValue(leaf, i); ok {
						out = append(out, BakedValue{Frame: frame, PropertyID: leaf, ArrayIndex: i, Value: v})
					}
				}
			}
		}
		if layer.Type == model.LayerComposition {
			if child, ok := m.Child(layer.ID); ok {
				out = append(out, collect(child, snap, frame)...)
			}
		}
	}
	return out
}
