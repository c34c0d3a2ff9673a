package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/animflow/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Format is a snapshot document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
	FormatCUE
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCUE:
		return "cue"
	default:
		return "yaml"
	}
}

// FormatOf picks a format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return 0, &LoadError{Code: ErrCodeFormat, Path: path, Message: "unknown document format (want .yaml, .yml, .json or .cue)"}
}

// Load reads a snapshot from a file, or from every .cue file of a directory
// treated as one CUE package.
func Load(path string) (*model.Snapshot, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// ReadDocument parses a file or CUE package directory without building it.
func ReadDocument(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Path: path, Message: err.Error(), Err: err}
	}
	if info.IsDir() {
		return ParseCUEDir(path)
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Path: path, Message: err.Error(), Err: err}
	}
	return Parse(data, format, path)
}

// Parse decodes a document. filename is only used in error positions.
func Parse(data []byte, format Format, filename string) (*Document, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatCUE:
		return ParseCUE(data, filename)
	default:
		return parseYAML(data)
	}
}

func parseYAML(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing YAML: %v", err), Err: err}
	}
	return &doc, nil
}

func parseJSON(data []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing JSON: %v", err), Err: err}
	}
	return &doc, nil
}

// ParseCUE compiles a CUE document, unifies it with the #Snapshot schema
// and decodes the concrete result.
func ParseCUE(data []byte, filename string) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	return decodeCUE(ctx, v)
}

// ParseCUEDir loads every .cue file in dir as one package, as `cue eval`
// would.
func ParseCUEDir(dir string) (*Document, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Path: dir, Message: err.Error(), Err: err}
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, inst.Err)
	}
	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fromCUE(ErrCodeBuildFailed, err)
	}
	return decodeCUE(ctx, v)
}

func decodeCUE(ctx *cue.Context, v cue.Value) (*Document, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fromCUE(ErrCodeGeneric, err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Snapshot")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, fromCUE(ErrCodeSchema, err)
	}
	return parseJSON(data)
}
