package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario drives a manager through a sequence of edits and checks the
// values it computes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Snapshot is the path of a snapshot document (YAML, JSON or CUE),
	// relative to the scenario file.
	Snapshot string `yaml:"snapshot"`

	// Composition is the id of the composition to evaluate.
	Composition string `yaml:"composition"`

	// Steps are applied in order after the initial reset.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions are checked against the manager after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Bake, when set, bakes the final snapshot into an in-memory store so
	// baked_value assertions can read it back.
	Bake *BakeRange `yaml:"bake,omitempty"`
}

// Step is one host edit followed by the matching notification.
type Step struct {
	// Action is one of the Step* constants.
	Action string `yaml:"action"`

	Frame      *int   `yaml:"frame,omitempty"`
	Property   string `yaml:"property,omitempty"`
	Node       string `yaml:"node,omitempty"`
	Layer      string `yaml:"layer,omitempty"`
	Value      any    `yaml:"value,omitempty"`
	Expression string `yaml:"expression,omitempty"`

	// Expect is checked right after the step.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Step actions.
const (
	StepSetFrame      = "set_frame"
	StepSetProperty   = "set_property"
	StepSetNodeState  = "set_node_state"
	StepSetExpression = "set_expression"
	StepRemoveLayer   = "remove_layer"
)

// ExpectClause checks the manager right after a step.
type ExpectClause struct {
	// Values maps property ids to expected computed values (subset match).
	Values map[string]any `yaml:"values,omitempty"`

	// Computed is the exact list of nodes the step evaluated, in order.
	Computed []string `yaml:"computed,omitempty"`

	// Errors lists error codes that must be present.
	Errors []string `yaml:"errors,omitempty"`
}

// BakeRange bounds a bake. A negative or missing last frame bakes to the
// end of the composition.
type BakeRange struct {
	First int  `yaml:"first"`
	Last  *int `yaml:"last,omitempty"`
}

// Assertion validates the final manager state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": computed value of Property equals Expect
	// - "array_value": value of Property at array instance Index equals Expect
	// - "array_count": Property (an array-modifier group) has Count instances
	// - "error": an error with Code exists, optionally for Node or Property
	// - "no_errors": the manager holds no errors
	// - "actions": Layer needs exactly Perform after a change to Property or Node
	// - "baked_value": baked value of Property at Frame (and Index) equals Expect
	Type string `yaml:"type"`

	Property string   `yaml:"property,omitempty"`
	Node     string   `yaml:"node,omitempty"`
	Layer    string   `yaml:"layer,omitempty"`
	Index    *int     `yaml:"index,omitempty"`
	Frame    int      `yaml:"frame,omitempty"`
	Count    int      `yaml:"count,omitempty"`
	Code     string   `yaml:"code,omitempty"`
	Perform  []string `yaml:"perform,omitempty"`
	Expect   any      `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertValue      = "value"
	AssertArrayValue = "array_value"
	AssertArrayCount = "array_count"
	AssertError      = "error"
	AssertNoErrors   = "no_errors"
	AssertActions    = "actions"
	AssertBakedValue = "baked_value"
)

// LoadScenario reads and parses a scenario YAML file. The snapshot path is
// resolved relative to the scenario's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Snapshot != "" && !filepath.IsAbs(scenario.Snapshot) {
		scenario.Snapshot = filepath.Join(filepath.Dir(path), scenario.Snapshot)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Snapshot == "" {
		return fmt.Errorf("snapshot is required")
	}
	if s.Composition == "" {
		return fmt.Errorf("composition is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
		if a.Type == AssertBakedValue && s.Bake == nil {
			return fmt.Errorf("assertions[%d]: baked_value needs a bake section", i)
		}
	}
	return nil
}

func validateStep(step Step, index int) error {
	switch step.Action {
	case StepSetFrame:
		if step.Frame == nil {
			return fmt.Errorf("steps[%d]: frame is required for set_frame", index)
		}
	case StepSetProperty:
		if step.Property == "" || step.Value == nil {
			return fmt.Errorf("steps[%d]: property and value are required for set_property", index)
		}
	case StepSetNodeState:
		if step.Node == "" {
			return fmt.Errorf("steps[%d]: node is required for set_node_state", index)
		}
		if step.Value == nil && step.Property == "" {
			return fmt.Errorf("steps[%d]: value or property is required for set_node_state", index)
		}
	case StepSetExpression:
		if step.Node == "" {
			return fmt.Errorf("steps[%d]: node is required for set_expression", index)
		}
	case StepRemoveLayer:
		if step.Layer == "" {
			return fmt.Errorf("steps[%d]: layer is required for remove_layer", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertValue:
		if a.Property == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: property and expect are required for value", index)
		}
	case AssertArrayValue:
		if a.Property == "" || a.Index == nil || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: property, index and expect are required for array_value", index)
		}
	case AssertArrayCount:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for array_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for array_count", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error", index)
		}
	case AssertNoErrors:
	case AssertActions:
		if a.Layer == "" || (a.Property == "" && a.Node == "") {
			return fmt.Errorf("assertions[%d]: layer and a property or node are required for actions", index)
		}
	case AssertBakedValue:
		if a.Property == "" || a.Expect == nil {
			return fmt.Errorf("assertions[%d]: property and expect are required for baked_value", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
