// Package harness runs scenario tests against the property manager.
//
// A scenario loads a snapshot document, creates a manager for one
// composition and then plays the host: each step edits the snapshot and
// sends the matching notification. After every step the harness records
// which nodes were evaluated, which layers need a refresh and which errors
// are present. Step expectations and final assertions check computed values.
//
// # Scenario Format
//
// Scenarios are YAML files named *.scenario.yaml:
//
//	name: opacity_drives_position
//	description: "What this scenario validates"
//	snapshot: scene.yaml          # relative to the scenario file
//	composition: main
//	steps:
//	  - action: set_frame
//	    frame: 10
//	    expect:
//	      values: { box.x: 100 }
//	      computed: [in, mul, out]
//	  - action: set_node_state
//	    node: k
//	    value: 3
//	  - action: set_property
//	    property: box.pos
//	    value: { x: 1, y: 2 }
//	  - action: set_expression
//	    node: e
//	    expression: "y = v * 3"
//	bake: { first: 0, last: 20 }
//	assertions:
//	  - type: value
//	    property: box.x
//	    expect: 150
//	  - type: array_value
//	    property: arr.off
//	    index: 2
//	    expect: 10
//	  - type: error
//	    code: UNKNOWN_REFERENCE
//	    node: p.in
//	  - type: actions
//	    property: box.x
//	    layer: box
//	    perform: [position]
//	  - type: baked_value
//	    property: box.op
//	    frame: 10
//	    expect: 50
//
// # Assertion Types
//
//   - value, array_value, array_count: computed state of the manager
//   - error, no_errors: recorded composition errors
//   - actions: ActionsToPerform for a change to a property or node
//   - baked_value: a value read back from an in-memory bake store
//
// # Golden Traces
//
// RunWithGolden compares the step trace and final values against
// testdata/golden/{name}.golden. Traces are deterministic: compute order
// comes from the compiled flow and map keys are sorted.
package harness
