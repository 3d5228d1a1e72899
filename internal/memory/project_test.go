package memory

import "testing"

func TestProject_FieldSubset(t *testing.T) {
	t.Parallel()

	m := Memory{
		ID:         "m1",
		Scope:      Scope{TenantID: "t1", UserID: "u1"},
		Text:       "espresso notes",
		Categories: []string{"food"},
	}

	out := Project(m, []string{"memory", "categories"})
	if out["id"] != "m1" {
		t.Error("id must always be preserved")
	}
	if out["memory"] != "espresso notes" {
		t.Errorf("memory = %v, want text", out["memory"])
	}
	if _, ok := out["user_id"]; ok {
		t.Error("unrequested fields must be dropped")
	}
}

func TestProject_EmptyFieldListReturnsAll(t *testing.T) {
	t.Parallel()

	m := Memory{ID: "m1", Text: "x"}
	out := Project(m, nil)
	if _, ok := out["memory"]; !ok {
		t.Error("full projection expected for empty field list")
	}
}

func TestProjectRanked_CarriesSimilarity(t *testing.T) {
	t.Parallel()

	sim := 0.42
	out := ProjectRanked(RankedMemory{
		Memory:     Memory{ID: "m1", Text: "x"},
		Similarity: &sim,
	}, []string{"memory"})
	if out["similarity"] != 0.42 {
		t.Errorf("similarity = %v, want 0.42", out["similarity"])
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	t.Parallel()

	a := Fingerprint("same text")
	b := Fingerprint("same text")
	if a != b {
		t.Error("fingerprint must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
	if a == Fingerprint("other text") {
		t.Error("different texts must not collide")
	}
}
