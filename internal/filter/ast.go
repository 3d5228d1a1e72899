// Package filter compiles client-supplied filter documents into
// parameterized SQL predicates over a fixed column allow-list.
//
// A filter document is JSON: an object whose keys are either the reserved
// compound keys AND/OR/NOT (case-insensitive) or allow-listed field names,
// an array (implicit AND), or a JSON-encoded string of either. Every literal
// value is passed as a bound parameter; user data never reaches the SQL
// text.
package filter

// Operator is a condition operator recognized in filter documents.
type Operator string

const (
	OpEq        Operator = "eq"
	OpNe        Operator = "ne"
	OpIn        Operator = "in"
	OpGt        Operator = "gt"
	OpGte       Operator = "gte"
	OpLt        Operator = "lt"
	OpLte       Operator = "lte"
	OpContains  Operator = "contains"
	OpIcontains Operator = "icontains"
	OpExists    Operator = "exists"
)

// comparisonOps are the operator-object keys accepted inside a field value.
// OpEq and OpExists are produced by value shape, not by key.
var comparisonOps = map[string]Operator{
	"in":        OpIn,
	"gte":       OpGte,
	"lte":       OpLte,
	"gt":        OpGt,
	"lt":        OpLt,
	"ne":        OpNe,
	"contains":  OpContains,
	"icontains": OpIcontains,
}

// Node is a parsed filter expression. It is built per request, compiled
// once, and discarded.
type Node interface {
	isNode()
}

// Condition is a single field comparison against an allow-listed column.
type Condition struct {
	Field Field
	Op    Operator
	Value any
}

// And matches when every child matches.
type And struct {
	Children []Node
}

// Or matches when at least one child matches.
type Or struct {
	Children []Node
}

// Not inverts its child.
type Not struct {
	Child Node
}

func (Condition) isNode() {}
func (And) isNode()       {}
func (Or) isNode()        {}
func (Not) isNode()       {}
