package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/animflow/internal/model"
)

// marshalValue converts a value to its kind name and JSON text. Non-finite
// numbers are written as the strings "NaN", "+Inf" and "-Inf".
func marshalValue(v model.Value) (kind string, data string, err error) {
	if v == nil {
		return "", "", fmt.Errorf("marshal value: nil value")
	}
	var native any = model.Native(v)
	if n, ok := v.(model.Number); ok {
		native = finite(float64(n))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(native); err != nil {
		return "", "", fmt.Errorf("marshal %s value: %w", v.Kind(), err)
	}
	return v.Kind().String(), strings.TrimSpace(buf.String()), nil
}

func finite(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return f
}

// unmarshalValue parses JSON text back into a value of the named kind.
func unmarshalValue(kind, data string) (model.Value, error) {
	k, err := model.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", kind, err)
	}
	v, err := model.FromNative(raw, k)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s value: %w", kind, err)
	}
	return v, nil
}
