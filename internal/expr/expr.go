// Package expr compiles and evaluates the text expressions carried by expr
// flow nodes.
//
// Expressions use HCL native syntax as a sequence of assignments, one per
// line or separated by semicolons:
//
//	y = x * 2
//	len = length(vec2(a, b)); out = clamp(len, 0, 100)
//
// Names read before they are assigned are inputs; assigned names are
// candidate outputs. Statements run in source order and later statements see
// earlier results.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

type statement struct {
	name string
	expr hclsyntax.Expression
}

// Program is a compiled expression. It is immutable and may be evaluated any
// number of times.
type Program struct {
	source    string
	stmts     []statement
	inputs    []string
	outputs   []string
	functions []string
}

// Source returns the text the program was compiled from.
func (p *Program) Source() string { return p.source }

// Inputs returns the free variable names in first-use order.
func (p *Program) Inputs() []string { return p.inputs }

// Outputs returns the assigned names in statement order.
func (p *Program) Outputs() []string { return p.outputs }

// CalledFunctions returns the sorted, unique function names the program calls.
func (p *Program) CalledFunctions() []string { return p.functions }

// SyntaxError reports text that does not parse as an expression program.
type SyntaxError struct {
	Source  string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression: %s", e.Message)
}

// Compile parses source into a Program.
func Compile(source string) (*Program, error) {
	text := strings.ReplaceAll(source, ";", "\n")
	file, diags := hclsyntax.ParseConfig([]byte(text), "expression", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, &SyntaxError{Source: source, Message: diags.Error()}
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, &SyntaxError{Source: source, Message: "unexpected body type"}
	}
	if len(body.Blocks) > 0 {
		return nil, &SyntaxError{Source: source, Message: fmt.Sprintf("blocks are not allowed (found %q)", body.Blocks[0].Type)}
	}

	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	p := &Program{source: source}
	assigned := make(map[string]bool)
	seenInput := make(map[string]bool)
	exprs := make([]hcl.Expression, 0, len(attrs))
	for _, attr := range attrs {
		for _, tr := range attr.Expr.Variables() {
			root := tr.RootName()
			if !assigned[root] && !seenInput[root] {
				seenInput[root] = true
				p.inputs = append(p.inputs, root)
			}
		}
		p.stmts = append(p.stmts, statement{name: attr.Name, expr: attr.Expr})
		p.outputs = append(p.outputs, attr.Name)
		assigned[attr.Name] = true
		exprs = append(exprs, attr.Expr)
	}

	_, p.functions = extractReferencesAndFunctions(exprs...)
	for _, fn := range p.functions {
		if _, ok := functions[fn]; !ok {
			return nil, &SyntaxError{Source: source, Message: fmt.Sprintf("unknown function %q", fn)}
		}
	}
	return p, nil
}

// EvalError reports a statement whose evaluation failed, typically because an
// operand had the wrong runtime type.
type EvalError struct {
	Statement string
	Message   string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %q: %s", e.Statement, e.Message)
}

// Eval runs the program against scope and returns every assigned value by
// name. A free variable missing from scope is an *ArityError.
func (p *Program) Eval(scope map[string]cty.Value) (map[string]cty.Value, error) {
	for _, name := range p.inputs {
		if _, ok := scope[name]; !ok {
			return nil, &ArityError{Port: name, Direction: DirectionInput, Message: "expression reads an unbound variable"}
		}
	}

	vars := make(map[string]cty.Value, len(scope)+len(p.stmts))
	for k, v := range scope {
		vars[k] = v
	}
	ctx := &hcl.EvalContext{Variables: vars, Functions: functions}

	results := make(map[string]cty.Value, len(p.stmts))
	for _, st := range p.stmts {
		v, diags := st.expr.Value(ctx)
		if diags.HasErrors() {
			return nil, &EvalError{Statement: st.name, Message: diags.Error()}
		}
		if v.IsNull() || !v.IsWhollyKnown() {
			return nil, &EvalError{Statement: st.name, Message: "result is null or unknown"}
		}
		vars[st.name] = v
		results[st.name] = v
	}
	return results, nil
}
