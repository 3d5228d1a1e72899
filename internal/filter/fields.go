package filter

import "strings"

// FieldType classifies an allow-listed column for type-aware compilation.
type FieldType int

const (
	TypeString FieldType = iota
	TypeDate
	TypeArray
)

// Field is one entry of the fixed column allow-list. The compiler never
// accepts a column name that is not listed here; Column is the only text
// that ever reaches the generated SQL.
type Field struct {
	Name   string
	Column string
	Type   FieldType
}

// allowedFields maps client-facing field names to columns. Keys are
// lowercase; lookups fold case.
var allowedFields = map[string]Field{
	"user_id":    {Name: "user_id", Column: "user_id", Type: TypeString},
	"agent_id":   {Name: "agent_id", Column: "agent_id", Type: TypeString},
	"app_id":     {Name: "app_id", Column: "app_id", Type: TypeString},
	"run_id":     {Name: "run_id", Column: "run_id", Type: TypeString},
	"org_id":     {Name: "org_id", Column: "org_id", Type: TypeString},
	"project_id": {Name: "project_id", Column: "project_id", Type: TypeString},
	"created_at": {Name: "created_at", Column: "created_at", Type: TypeDate},
	"updated_at": {Name: "updated_at", Column: "updated_at", Type: TypeDate},
	"expires_at": {Name: "expires_at", Column: "expires_at", Type: TypeDate},
	"categories": {Name: "categories", Column: "categories", Type: TypeArray},
	"keywords":   {Name: "keywords", Column: "keywords", Type: TypeArray},
}

// lookupField resolves a client field name against the allow-list.
func lookupField(name string) (Field, bool) {
	f, ok := allowedFields[strings.ToLower(name)]
	return f, ok
}
