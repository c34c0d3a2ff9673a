package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DomainSnapshot prefixes snapshot fingerprints so they never collide with
// hashes of other content.
const DomainSnapshot = "animflow/snapshot/v1"

// Fingerprint computes a content hash of everything that can influence the
// evaluation of a snapshot. Equal snapshots hash equal regardless of map
// iteration order or Unicode normalization of names.
func Fingerprint(s *Snapshot) (string, error) {
	doc, err := canonicalSnapshot(s)
	if err != nil {
		return "", err
	}
	data, err := marshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalSnapshot(s *Snapshot) (map[string]any, error) {
	comps := make(map[string]any, len(s.Compositions))
	for id, c := range s.Compositions {
		comps[id] = map[string]any{
			"name": c.Name, "width": c.Width, "height": c.Height,
			"length": c.Length, "frame_index": c.FrameIndex, "layers": stringsToAny(c.Layers),
		}
	}
	layers := make(map[string]any, len(s.Layers))
	for id, l := range s.Layers {
		layers[id] = map[string]any{
			"name": l.Name, "composition_id": l.CompositionID, "parent": l.ParentLayerID,
			"type": l.Type.String(), "properties": stringsToAny(l.Properties), "graph_id": l.GraphID,
			"index": l.Index, "length": l.Length, "nested": l.NestedCompositionID,
		}
	}
	props := make(map[string]any, len(s.Properties))
	for id, node := range s.Properties {
		switch p := node.(type) {
		case *Property:
			props[id] = map[string]any{
				"shape": "property", "layer": p.LayerID, "name": string(p.Name),
				"kind": p.ValueType.String(), "value": Native(p.Value), "timeline": p.TimelineID,
			}
		case *CompoundProperty:
			props[id] = map[string]any{
				"shape": "compound", "layer": p.LayerID, "name": string(p.Name),
				"properties": stringsToAny(p.Properties[:]), "separated": p.Separated,
			}
		case *PropertyGroup:
			props[id] = map[string]any{
				"shape": "group", "layer": p.LayerID, "name": string(p.Name), "type": p.Type.String(),
				"properties": stringsToAny(p.Properties), "graph_id": p.GraphID,
			}
		default:
			return nil, fmt.Errorf("fingerprint: property %q has unsupported shape %T", id, node)
		}
	}
	timelines := make(map[string]any, len(s.Timelines))
	for id, t := range s.Timelines {
		kfs := make([]any, len(t.Keyframes))
		for i, k := range t.Keyframes {
			kfs[i] = map[string]any{"index": k.Index, "value": k.Value, "interpolation": k.Interpolation.String()}
		}
		timelines[id] = map[string]any{"property": t.PropertyID, "keyframes": kfs}
	}
	graphs := make(map[string]any, len(s.Graphs))
	for id, g := range s.Graphs {
		graphs[id] = map[string]any{"owner": g.OwnerID, "owner_kind": g.OwnerKind.String(), "nodes": stringsToAny(g.Nodes)}
	}
	nodes := make(map[string]any, len(s.Nodes))
	for id, n := range s.Nodes {
		inputs := make([]any, len(n.Inputs))
		for i, in := range n.Inputs {
			entry := map[string]any{"name": in.Name, "type": in.Type.String(), "value": Native(in.Value)}
			if in.Pointer != nil {
				entry["pointer"] = map[string]any{"node": in.Pointer.NodeID, "output": in.Pointer.OutputIndex}
			}
			inputs[i] = entry
		}
		outputs := make([]any, len(n.Outputs))
		for i, out := range n.Outputs {
			outputs[i] = map[string]any{"name": out.Name, "type": out.Type.String()}
		}
		nodes[id] = map[string]any{
			"graph": n.GraphID, "type": n.Type.String(), "inputs": inputs, "outputs": outputs,
			"state": map[string]any{
				"value": Native(n.State.Value), "expression": n.State.Expression,
				"layer": n.State.LayerID, "property": n.State.PropertyID,
			},
		}
	}
	return map[string]any{
		"compositions": comps, "layers": layers, "properties": props,
		"timelines": timelines, "graphs": graphs, "nodes": nodes,
	}, nil
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// marshalCanonical writes JSON with sorted object keys, NFC-normalized
// strings and shortest round-trip float formatting.
func marshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeCanonicalString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
