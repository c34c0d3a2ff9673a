package loader

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/animflow/internal/compiler"
	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/model"
)

// =============================================================================
// Formats
// =============================================================================

func TestLoad_FormatsAgree(t *testing.T) {
	var fingerprints []string
	for _, name := range []string{"basic.yaml", "basic.json", "basic.cue"} {
		snap, err := Load(filepath.Join("testdata", name))
		require.NoError(t, err, name)
		fp, err := model.Fingerprint(snap)
		require.NoError(t, err)
		fingerprints = append(fingerprints, fp)
	}
	assert.Equal(t, fingerprints[0], fingerprints[1], "yaml vs json")
	assert.Equal(t, fingerprints[0], fingerprints[2], "yaml vs cue")
}

func TestLoad_BuildsSnapshot(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "basic.yaml"))
	require.NoError(t, err)

	comp := snap.Compositions["main"]
	require.NotNil(t, comp)
	assert.Equal(t, "main", comp.Name)
	assert.Equal(t, 60, comp.Length)
	assert.Equal(t, []string{"box"}, comp.Layers)

	layer := snap.Layers["box"]
	require.NotNil(t, layer)
	assert.Equal(t, model.LayerShape, layer.Type)
	assert.Equal(t, "box.graph", layer.GraphID)
	assert.Equal(t, []string{"box.opacity", "box.pos", "box.fill", "box.arr"}, layer.Properties)

	op := snap.Properties["box.opacity"].(*model.Property)
	assert.Equal(t, model.KindNumber, op.ValueType)
	assert.Equal(t, model.Number(100), op.Value)
	assert.Equal(t, "tl.box.opacity", op.TimelineID)
	tl := snap.Timelines["tl.box.opacity"]
	require.Len(t, tl.Keyframes, 2)
	assert.Equal(t, "box.opacity.k1", tl.Keyframes[1].ID)
	assert.Equal(t, 100.0, tl.Keyframes[1].Value)

	pos := snap.Properties["box.pos"].(*model.CompoundProperty)
	assert.Equal(t, [2]string{"box.pos.x", "box.pos.y"}, pos.Properties)
	assert.Equal(t, model.Number(20), snap.Properties["box.pos.y"].(*model.Property).Value)

	fill := snap.Properties["box.fill"].(*model.Property)
	assert.Equal(t, model.NewColor(255, 0, 0, 1), fill.Value)

	arr := snap.Properties["box.arr"].(*model.PropertyGroup)
	assert.Equal(t, model.GroupArrayModifier, arr.Type)
	assert.Equal(t, "box.arr.graph", arr.GraphID)
	assert.Equal(t, model.OwnerArrayModifier, snap.Graphs["box.arr.graph"].OwnerKind)
	assert.Equal(t, model.Number(0), snap.Properties["box.arr.off"].(*model.Property).Value)
}

func TestLoad_ResolvesConnections(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "basic.yaml"))
	require.NoError(t, err)

	half := snap.Nodes["box.half"]
	require.NotNil(t, half)
	require.Len(t, half.Inputs, 1)
	assert.Equal(t, &model.OutputPointer{NodeID: "box.in", OutputIndex: 0}, half.Inputs[0].Pointer)
	assert.Equal(t, "x", half.Outputs[0].Name)

	out := snap.Nodes["box.out"]
	assert.Equal(t, "box", out.State.LayerID)
	require.Len(t, out.Inputs, 3, "vector slot plus one per leaf")
	assert.Nil(t, out.Inputs[0].Pointer)
	assert.Equal(t, "PositionX", out.Inputs[1].Name)
	assert.Equal(t, &model.OutputPointer{NodeID: "box.half", OutputIndex: 0}, out.Inputs[1].Pointer)

	mul := snap.Nodes["arr.mul"]
	assert.Equal(t, &model.OutputPointer{NodeID: "arr.idx", OutputIndex: 0}, mul.Inputs[0].Pointer)
	assert.Equal(t, model.Number(5), mul.Inputs[1].Value)
	assert.Equal(t, &model.OutputPointer{NodeID: "arr.mul", OutputIndex: 0}, snap.Nodes["arr.out"].Inputs[0].Pointer)
}

func TestLoad_SnapshotEvaluates(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "basic.yaml"))
	require.NoError(t, err)
	assert.Empty(t, compiler.Validate(snap))

	m := engine.New("main", snap)
	require.Empty(t, m.Errors())
	m.OnFrameIndexChanged(10)

	op, ok := m.PropertyValue("box.opacity")
	require.True(t, ok)
	assert.Equal(t, model.Number(50), op)
	x, ok := m.PropertyValue("box.pos.x")
	require.True(t, ok)
	assert.Equal(t, model.Number(25), x)

	n, ok := m.ArrayCount("box.arr")
	require.True(t, ok)
	assert.Equal(t, 3, n)
	v, ok := m.ArrayModifierValue("box.arr.off", 2)
	require.True(t, ok)
	assert.Equal(t, model.Number(10), v)
}

func TestLoad_CUEPackageDir(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "cuedir"))
	require.NoError(t, err)
	require.Contains(t, snap.Layers, "box")
	assert.Equal(t, 10, snap.Compositions["main"].Length)
	assert.Equal(t, model.Number(40), snap.Properties["box.opacity"].(*model.Property).Value)
}

// =============================================================================
// Errors
// =============================================================================

func codes(err error) []string {
	var out []string
	for _, le := range Errors(err) {
		out = append(out, le.Code)
	}
	return out
}

func TestLoad_DocumentErrors(t *testing.T) {
	tests := []struct {
		file string
		code string
	}{
		{"unknown_field.yaml", ErrCodeParseFailed},
		{"broken.yaml", ErrCodeParseFailed},
		{"bad_schema.cue", ErrCodeSchema},
		{"missing.yaml", ErrCodeReadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := Load(filepath.Join("testdata", tt.file))
			require.Error(t, err)
			assert.Contains(t, codes(err), tt.code)
		})
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))
	_, err := Load(path)
	assert.Equal(t, []string{ErrCodeFormat}, codes(err))
}

func TestLoad_CUEErrorsCarryPositions(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad_schema.cue"))
	require.Error(t, err)
	errs := Errors(err)
	require.NotEmpty(t, errs)
	assert.True(t, errs[0].Pos.IsValid())
}

func TestBuild_CollectsAllErrors(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "errors.yaml"))
	require.Error(t, err)
	assert.Equal(t, []string{
		ErrCodeUnknownEnum,  // layer type sprite
		ErrCodeBadValue,     // "lots" is not a number
		ErrCodeShape,        // compound with one leaf
		ErrCodeDuplicateID,  // p3 twice
		ErrCodeUnknownInput, // num_add has no input c
		ErrCodeUnknownEnum,  // node type warp
		ErrCodeBadOutput,    // n1 has no output "missing"
	}, codes(err))
}

func TestBuild_KeepsStaleReferences(t *testing.T) {
	doc := &Document{Compositions: []CompositionDoc{{
		ID: "c", Width: 1, Height: 1, Length: 1,
		Layers: []LayerDoc{{
			ID:     "l",
			Parent: "ghost",
			Graph: &GraphDoc{Nodes: []NodeDoc{
				{ID: "in", Type: "property_input", Property: "gone"},
				{ID: "e", Type: "expr", Expression: "y = (", Inputs: map[string]InputDoc{
					"v": {Node: "nowhere", Output: 1},
				}, Outputs: []string{"y"}},
			}},
		}},
	}}}

	snap, err := Build(doc)
	require.NoError(t, err)
	assert.Empty(t, snap.Nodes["in"].Outputs)
	e := snap.Nodes["e"]
	require.Len(t, e.Inputs, 1)
	assert.Equal(t, &model.OutputPointer{NodeID: "nowhere", OutputIndex: 1}, e.Inputs[0].Pointer)
	assert.Equal(t, "y", e.Outputs[0].Name)

	var found []string
	for _, ve := range compiler.Validate(snap) {
		found = append(found, ve.Code)
	}
	assert.Contains(t, found, compiler.ErrUnknownParent)
	assert.Contains(t, found, compiler.ErrPointerTarget)
}

// =============================================================================
// Export
// =============================================================================

func TestExport_RoundTrip(t *testing.T) {
	snap, err := Load(filepath.Join("testdata", "basic.yaml"))
	require.NoError(t, err)
	want, err := model.Fingerprint(snap)
	require.NoError(t, err)

	for _, format := range []Format{FormatYAML, FormatJSON} {
		t.Run(format.String(), func(t *testing.T) {
			var data []byte
			if format == FormatYAML {
				data, err = MarshalYAML(Export(snap))
			} else {
				data, err = MarshalJSON(Export(snap))
			}
			require.NoError(t, err)

			doc, err := Parse(data, format, "export")
			require.NoError(t, err)
			back, err := Build(doc)
			require.NoError(t, err)
			got, err := model.Fingerprint(back)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// =============================================================================
// Schema
// =============================================================================

func TestSchema_ListsEveryNodeType(t *testing.T) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	require.NoError(t, schema.Err())
	nodeType := schema.LookupPath(cue.ParsePath("#NodeType"))

	for _, typ := range model.AllNodeTypes() {
		v := nodeType.Unify(ctx.Encode(typ.String()))
		assert.NoError(t, v.Validate(cue.Concrete(true)), typ.String())
	}
	assert.Error(t, nodeType.Unify(ctx.Encode("warp")).Validate(cue.Concrete(true)))
}
