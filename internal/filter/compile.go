package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate is a compiled boolean predicate: a SQL fragment with every
// literal as a bound parameter. It is safe to splice into a WHERE clause.
type Predicate struct {
	SQL  string
	Args []any
}

// Compile parses rawFilter and compiles it into a Predicate. The tenant
// restriction is ANDed first unconditionally; nothing in rawFilter can
// remove or override it.
func Compile(tenantID string, rawFilter any) (Predicate, error) {
	node, err := Parse(rawFilter)
	if err != nil {
		return Predicate{}, err
	}

	pred := Predicate{
		SQL:  "tenant_id = ?",
		Args: []any{tenantID},
	}

	if node == nil {
		return pred, nil
	}

	frag, args, err := compileNode(node)
	if err != nil {
		return Predicate{}, err
	}

	pred.SQL += " AND " + frag
	pred.Args = append(pred.Args, args...)
	return pred, nil
}

func compileNode(node Node) (string, []any, error) {
	switch n := node.(type) {
	case Condition:
		return compileCondition(n)
	case And:
		return compileCompound(n.Children, " AND ")
	case Or:
		return compileCompound(n.Children, " OR ")
	case Not:
		frag, args, err := compileNode(n.Child)
		if err != nil {
			return "", nil, err
		}
		return "NOT " + frag, args, nil
	default:
		return "", nil, fmt.Errorf("%w: unknown node %T", ErrInvalidSyntax, node)
	}
}

func compileCompound(children []Node, sep string) (string, []any, error) {
	if len(children) == 0 {
		return "(1 = 1)", nil, nil
	}

	frags := make([]string, 0, len(children))
	var args []any
	for _, child := range children {
		frag, childArgs, err := compileNode(child)
		if err != nil {
			return "", nil, err
		}
		frags = append(frags, frag)
		args = append(args, childArgs...)
	}
	return "(" + strings.Join(frags, sep) + ")", args, nil
}

// compileCondition emits type-aware SQL for one condition. Array columns are
// stored as JSON arrays; membership and substring checks go through
// json_each. Substring matching uses instr rather than LIKE: sqlite LIKE is
// case-insensitive for ASCII, which would conflate contains and icontains.
func compileCondition(c Condition) (string, []any, error) {
	col := c.Field.Column

	switch c.Op {
	case OpEq:
		if c.Value == nil {
			if c.Field.Type == TypeArray {
				return "(" + col + " IS NULL OR json_array_length(" + col + ") = 0)", nil, nil
			}
			return col + " IS NULL", nil, nil
		}
		if c.Field.Type == TypeArray {
			return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE json_each.value = ?)",
				[]any{bindValue(c.Value)}, nil
		}
		return col + " = ?", []any{bindValue(c.Value)}, nil

	case OpNe:
		if c.Value == nil {
			if c.Field.Type == TypeArray {
				return "(" + col + " IS NOT NULL AND json_array_length(" + col + ") > 0)", nil, nil
			}
			return col + " IS NOT NULL", nil, nil
		}
		if c.Field.Type == TypeArray {
			return "NOT EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE json_each.value = ?)",
				[]any{bindValue(c.Value)}, nil
		}
		return col + " <> ?", []any{bindValue(c.Value)}, nil

	case OpIn:
		items, ok := c.Value.([]any)
		if !ok {
			items = []any{c.Value}
		}
		if len(items) == 0 {
			// Empty set: matches nothing.
			return "(1 = 0)", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
		args := make([]any, 0, len(items))
		for _, item := range items {
			args = append(args, bindValue(item))
		}
		if c.Field.Type == TypeArray {
			// Array overlap: any stored element in the given set.
			return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE json_each.value IN (" + placeholders + "))",
				args, nil
		}
		return col + " IN (" + placeholders + ")", args, nil

	case OpGt, OpGte, OpLt, OpLte:
		if c.Field.Type != TypeDate {
			return "", nil, fmt.Errorf("%w: %s on field %q", ErrUnsupportedOperator, c.Op, c.Field.Name)
		}
		cmp := map[Operator]string{OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<="}[c.Op]
		return col + " " + cmp + " ?", []any{bindValue(c.Value)}, nil

	case OpContains:
		if c.Field.Type == TypeArray {
			return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE instr(json_each.value, ?) > 0)",
				[]any{bindValue(c.Value)}, nil
		}
		return "instr(" + col + ", ?) > 0", []any{bindValue(c.Value)}, nil

	case OpIcontains:
		if c.Field.Type == TypeArray {
			return "EXISTS (SELECT 1 FROM json_each(" + col + ") WHERE instr(lower(json_each.value), lower(?)) > 0)",
				[]any{bindValue(c.Value)}, nil
		}
		return "instr(lower(" + col + "), lower(?)) > 0", []any{bindValue(c.Value)}, nil

	case OpExists:
		if c.Field.Type == TypeArray {
			return "(" + col + " IS NOT NULL AND json_array_length(" + col + ") > 0)", nil, nil
		}
		return col + " IS NOT NULL", nil, nil

	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedOperator, c.Op)
	}
}

// bindValue normalizes a decoded JSON value for parameter binding.
// Composite values bind as their JSON encoding; scalars bind as-is.
func bindValue(v any) any {
	switch vv := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(vv)
		if err != nil {
			return fmt.Sprintf("%v", vv)
		}
		return string(b)
	case bool:
		if vv {
			return 1
		}
		return 0
	default:
		return v
	}
}
