package termindex

import (
	"fmt"
	"strings"
)

// FieldKind decides how a field is handled when indexing
type FieldKind string

const (
	// FieldStored is kept verbatim and returned with hits, never searched
	FieldStored FieldKind = "stored"
	// FieldText is whitespace-tokenized full text
	FieldText FieldKind = "text"
	// FieldIdentifier holds identifier terms (method and class names)
	FieldIdentifier FieldKind = "identifier"
)

// Field is a named field of a schema
type Field struct {
	Name string
	Kind FieldKind
}

// Schema lists the fields of an index. IDField must be a stored field and
// be present on every document.
type Schema struct {
	IDField string
	Fields  []Field
}

// Operator combines the per-token clauses of a query
type Operator string

const (
	Or  Operator = "OR"
	And Operator = "AND"
)

// Validate checks that the ID field is declared as stored
func (s Schema) Validate() error {
	if s.IDField == "" {
		return fmt.Errorf("schema requires an id field")
	}
	f, ok := s.Field(s.IDField)
	if !ok || f.Kind != FieldStored {
		return fmt.Errorf("id field %q must be a stored field", s.IDField)
	}
	return nil
}

// Field looks up a field by name
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Fingerprint describes the schema and scoring so that a persisted index
// built with other settings is detected as stale
func Fingerprint(s Schema, sim Similarity, op Operator) string {
	parts := make([]string, 0, len(s.Fields)+2)
	for _, f := range s.Fields {
		parts = append(parts, f.Name+":"+string(f.Kind))
	}
	parts = append(parts, "id="+s.IDField, "sim="+sim.Name(), "op="+string(op))
	return strings.Join(parts, "|")
}
