// Package expr turns expression documents into evaluation trees.
//
// A document is the decoded form of a combined metric's "expression" config
// value (YAML or JSON): a number is a constant, a string names an input
// metric, and an object with an "operation" key builds an interior node:
//
//	{operation: "+"|"-"|"*"|"/", left: <doc>, right: <doc>}
//	{operation: "sum"|"min"|"max", inputs: [<doc>, ...]}
//	{operation: "min"|"max", left: <doc>, right: <doc>}
//	{operation: "throttle", input: <doc>, cooldown_period: "5s"}
//	{operation: "hold", input: "<metric>"}
//
// Parse also rejects trees that could spin forever without external input,
// for instance an expression built only from constants.
//
// Display renders a tree for log lines and the API: infix for arithmetic,
// op[a, b, ...] for aggregates.
package expr
