package schema

import (
	"fmt"

	"github.com/contentsquare/tablecheck/table"
)

// SchemaLevelRow marks issues that concern the table shape rather
// than a single row.
const SchemaLevelRow = -1

// Rule identifiers used in issues.
const (
	RuleMissingColumn = "missing-column"
	RuleType          = "type-mismatch"
	RuleNotNullable   = "not-nullable"
	RuleExtraColumn   = "extra-column"
)

// Issue is one violated rule, either schema-level (Row == -1) or
// tied to a row.
type Issue struct {
	Column  string `json:"column"`
	Rule    string `json:"rule"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Report is the outcome of validating one table against one schema.
// Reports live for a single request; they are returned to the caller
// and dropped.
type Report struct {
	Schema string  `json:"schema"`
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues"`
}

// Validate checks the table against the schema, rule by rule in
// declared order. It never aborts: every violated rule lands in the
// report as data and the caller decides what to do with it.
func Validate(t *table.Table, s *Schema) *Report {
	issues := []Issue{}

	for _, rule := range s.Rules {
		if !t.HasColumn(rule.Column) {
			if rule.Required {
				issues = append(issues, Issue{
					Column:  rule.Column,
					Rule:    RuleMissingColumn,
					Row:     SchemaLevelRow,
					Message: fmt.Sprintf("required column %q is missing", rule.Column),
				})
			}
			// Row checks make no sense without the column.
			continue
		}

		for i := 0; i < t.NumRows(); i++ {
			v := t.Value(i, rule.Column)
			if v.IsNull() {
				if !rule.Nullable {
					issues = append(issues, Issue{
						Column:  rule.Column,
						Rule:    RuleNotNullable,
						Row:     i,
						Message: fmt.Sprintf("column %q must not be null", rule.Column),
					})
				}
				continue
			}
			if !typeMatches(v.Kind(), rule.Type) {
				issues = append(issues, Issue{
					Column:  rule.Column,
					Rule:    RuleType,
					Row:     i,
					Message: fmt.Sprintf("column %q must be %s, got %s", rule.Column, rule.Type, v.Kind()),
				})
			}
		}
	}

	if !s.AllowExtraColumns {
		ruled := make(map[string]struct{}, len(s.Rules))
		for _, rule := range s.Rules {
			ruled[rule.Column] = struct{}{}
		}
		for _, c := range t.Columns {
			if _, ok := ruled[c]; !ok {
				issues = append(issues, Issue{
					Column:  c,
					Rule:    RuleExtraColumn,
					Row:     SchemaLevelRow,
					Message: fmt.Sprintf("column %q is not declared by the schema", c),
				})
			}
		}
	}

	return &Report{
		Schema: s.Name,
		Passed: len(issues) == 0,
		Issues: issues,
	}
}
