package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Parse turns a raw filter document into an AST. A nil document yields a nil
// node (no extra predicate). Accepted shapes, applied recursively:
//
//   - string: JSON-decoded and re-parsed
//   - array:  implicit AND of its parsed elements
//   - object: AND/OR/NOT compounds, or field conditions
func Parse(raw any) (Node, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil

	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSyntax, err)
		}
		return Parse(decoded)

	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		return Parse(string(v))

	case []any:
		return parseList(v)

	case map[string]any:
		return parseObject(v)

	default:
		return nil, fmt.Errorf("%w: unexpected value of type %T", ErrInvalidSyntax, raw)
	}
}

// parseList builds an implicit AND from the elements of an array document.
func parseList(items []any) (Node, error) {
	var children []Node
	for _, item := range items {
		child, err := Parse(item)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return And{Children: children}, nil
	}
}

// parseObject handles both compound keys (AND/OR/NOT, case-insensitive) and
// field conditions. Keys are processed in sorted order so the compiled SQL
// is deterministic for a given document.
func parseObject(obj map[string]any) (Node, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Node
	for _, key := range keys {
		value := obj[key]

		var (
			child Node
			err   error
		)
		switch strings.ToUpper(key) {
		case "AND":
			child, err = parseCompound(value, func(nodes []Node) Node { return And{Children: nodes} })
		case "OR":
			child, err = parseCompound(value, func(nodes []Node) Node { return Or{Children: nodes} })
		case "NOT":
			child, err = parseNot(value)
		default:
			child, err = parseField(key, value)
		}
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return And{Children: children}, nil
	}
}

// parseCompound parses the value of an AND/OR key. An array is the normal
// shape; a single object is accepted as a one-element compound.
func parseCompound(value any, build func([]Node) Node) (Node, error) {
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}

	var children []Node
	for _, item := range items {
		child, err := Parse(item)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	if len(children) == 0 {
		return nil, nil
	}
	return build(children), nil
}

// parseNot parses the value of a NOT key. Arrays negate the AND of their
// elements.
func parseNot(value any) (Node, error) {
	child, err := Parse(value)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, fmt.Errorf("%w: NOT requires a filter expression", ErrInvalidSyntax)
	}
	return Not{Child: child}, nil
}

// parseField resolves a field name against the allow-list and classifies its
// value:
//
//   - "*"                       -> exists
//   - list                      -> in
//   - object of known operators -> one condition per operator, ANDed
//   - anything else             -> eq (nil compiles to IS NULL)
func parseField(name string, value any) (Node, error) {
	field, ok := lookupField(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, name)
	}

	if s, ok := value.(string); ok && s == "*" {
		return Condition{Field: field, Op: OpExists}, nil
	}

	if list, ok := value.([]any); ok {
		return Condition{Field: field, Op: OpIn, Value: list}, nil
	}

	if obj, ok := value.(map[string]any); ok && len(obj) > 0 && allKeysAreOperators(obj) {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var children []Node
		for _, k := range keys {
			children = append(children, Condition{
				Field: field,
				Op:    comparisonOps[strings.ToLower(k)],
				Value: obj[k],
			})
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return And{Children: children}, nil
	}

	return Condition{Field: field, Op: OpEq, Value: value}, nil
}

// allKeysAreOperators reports whether every key of an object is a recognized
// comparison operator. Mixed objects fall back to eq on the whole value.
func allKeysAreOperators(obj map[string]any) bool {
	for k := range obj {
		if _, ok := comparisonOps[strings.ToLower(k)]; !ok {
			return false
		}
	}
	return true
}
