// Package schema holds the named table contracts upstream payloads
// are checked against, and the validator producing per-rule reports.
package schema

import (
	"fmt"

	"github.com/contentsquare/tablecheck/table"
)

// Type is the expected column type of a rule.
type Type int

const (
	TypeString Type = iota
	TypeInteger
	TypeFloat
	TypeBoolean
)

// String returns the type name used in issue messages.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("unknown type %d", int(t))
	}
}

// Rule constrains one column.
type Rule struct {
	// Column is the column name the rule applies to.
	Column string

	// Type is the expected runtime shape of non-null cells.
	Type Type

	// Nullable allows null or absent cells.
	Nullable bool

	// Required demands that the column exists in the table at all.
	Required bool
}

// Schema is an ordered set of column rules. Schemas are immutable:
// built once at startup, then only read.
type Schema struct {
	Name  string
	Rules []Rule

	// AllowExtraColumns accepts columns not covered by any rule.
	// Every schema in this system sets it: the upstream adds fields
	// between releases and additions must never fail validation.
	AllowExtraColumns bool
}

// Registry is an immutable set of schemas keyed by name.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry builds a registry from the given schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	m := make(map[string]*Schema, len(schemas))
	for _, s := range schemas {
		if _, ok := m[s.Name]; ok {
			panic(fmt.Sprintf("BUG: duplicate schema name %q", s.Name))
		}
		m[s.Name] = s
	}
	return &Registry{schemas: m}
}

// Get returns the schema registered under name.
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// typeMatches reports whether a non-null cell satisfies the expected
// type. Integers satisfy float rules: the upstream encodes whole
// float values without a decimal point.
func typeMatches(k table.Kind, t Type) bool {
	switch t {
	case TypeString:
		return k == table.KindString
	case TypeInteger:
		return k == table.KindInteger
	case TypeFloat:
		return k == table.KindFloat || k == table.KindInteger
	case TypeBoolean:
		return k == table.KindBool
	default:
		return false
	}
}
