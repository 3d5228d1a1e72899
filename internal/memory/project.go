package memory

import "encoding/json"

// Project reduces a memory's JSON representation to the requested fields.
// The identity field is always preserved. A nil or empty field list returns
// the full representation.
func Project(m Memory, fields []string) map[string]any {
	full := toMap(m)
	if len(fields) == 0 {
		return full
	}

	out := map[string]any{"id": full["id"]}
	for _, f := range fields {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return out
}

// ProjectRanked is Project for search results; the similarity score rides
// along when present.
func ProjectRanked(r RankedMemory, fields []string) map[string]any {
	out := Project(r.Memory, fields)
	if r.Similarity != nil {
		out["similarity"] = *r.Similarity
	}
	return out
}

func toMap(m Memory) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{"id": m.ID}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"id": m.ID}
	}
	return out
}
