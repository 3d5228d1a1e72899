package filter

import (
	"errors"
	"testing"
)

func TestParse_Nil(t *testing.T) {
	t.Parallel()

	node, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Fatalf("expected nil node, got %#v", node)
	}
}

func TestParse_JSONString(t *testing.T) {
	t.Parallel()

	node, err := Parse(`{"user_id": "u1"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond, ok := node.(Condition)
	if !ok {
		t.Fatalf("expected Condition, got %#v", node)
	}
	if cond.Field.Name != "user_id" || cond.Op != OpEq || cond.Value != "u1" {
		t.Errorf("unexpected condition: %#v", cond)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"user_id": `)
	if !errors.Is(err, ErrInvalidSyntax) {
		t.Fatalf("expected ErrInvalidSyntax, got %v", err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse(map[string]any{"password": "x"})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}

func TestParse_FieldCaseInsensitive(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{"USER_ID": "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond := node.(Condition)
	if cond.Field.Name != "user_id" {
		t.Errorf("field name = %q, want user_id", cond.Field.Name)
	}
}

func TestParse_CompoundAnd(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{
		"AND": []any{
			map[string]any{"user_id": "u1"},
			map[string]any{"agent_id": "a1"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	and, ok := node.(And)
	if !ok {
		t.Fatalf("expected And, got %#v", node)
	}
	if len(and.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(and.Children))
	}
}

func TestParse_CompoundCaseInsensitive(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{
		"or": []any{
			map[string]any{"user_id": "u1"},
			map[string]any{"user_id": "u2"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(Or); !ok {
		t.Fatalf("expected Or, got %#v", node)
	}
}

func TestParse_Not(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{"NOT": map[string]any{"user_id": "u1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	not, ok := node.(Not)
	if !ok {
		t.Fatalf("expected Not, got %#v", node)
	}
	if _, ok := not.Child.(Condition); !ok {
		t.Errorf("expected Condition child, got %#v", not.Child)
	}
}

func TestParse_NotWithoutExpression(t *testing.T) {
	t.Parallel()

	_, err := Parse(map[string]any{"NOT": nil})
	if !errors.Is(err, ErrInvalidSyntax) {
		t.Fatalf("expected ErrInvalidSyntax, got %v", err)
	}
}

func TestParse_ListValueBecomesIn(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{"user_id": []any{"u1", "u2"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond := node.(Condition)
	if cond.Op != OpIn {
		t.Errorf("op = %q, want in", cond.Op)
	}
}

func TestParse_WildcardBecomesExists(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{"run_id": "*"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond := node.(Condition)
	if cond.Op != OpExists {
		t.Errorf("op = %q, want exists", cond.Op)
	}
}

func TestParse_OperatorObject(t *testing.T) {
	t.Parallel()

	node, err := Parse(map[string]any{
		"created_at": map[string]any{"gte": "2024-01-01", "lte": "2024-12-31"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	and, ok := node.(And)
	if !ok {
		t.Fatalf("expected And of two comparisons, got %#v", node)
	}
	ops := map[Operator]bool{}
	for _, child := range and.Children {
		ops[child.(Condition).Op] = true
	}
	if !ops[OpGte] || !ops[OpLte] {
		t.Errorf("expected gte and lte conditions, got %#v", and.Children)
	}
}

func TestParse_MixedObjectFallsBackToEq(t *testing.T) {
	t.Parallel()

	// An object with any non-operator key is an eq match on the whole value.
	node, err := Parse(map[string]any{
		"user_id": map[string]any{"gte": "x", "other": "y"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond := node.(Condition)
	if cond.Op != OpEq {
		t.Errorf("op = %q, want eq", cond.Op)
	}
}

func TestParse_ArrayIsImplicitAnd(t *testing.T) {
	t.Parallel()

	node, err := Parse([]any{
		map[string]any{"user_id": "u1"},
		map[string]any{"agent_id": "a1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(And); !ok {
		t.Fatalf("expected And, got %#v", node)
	}
}

func TestParse_DeterministicKeyOrder(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"user_id": "u1", "agent_id": "a1", "app_id": "p1"}
	first, err := Parse(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range 10 {
		again, err := Parse(doc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		a := first.(And)
		b := again.(And)
		for i := range a.Children {
			if a.Children[i].(Condition).Field.Name != b.Children[i].(Condition).Field.Name {
				t.Fatal("parse order is not deterministic")
			}
		}
	}
}
