// Package table turns decoded JSON documents into a uniform tabular
// representation: ordered rows of named, tagged-variant columns.
package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Row maps column names to cell values. Columns absent from the
// source object are simply absent from the row; Table.Value reports
// them as null.
type Row map[string]Value

// Table is the normalized form of an upstream JSON document.
// It is produced fresh per fetch and never mutated afterwards:
// validation only reads it.
type Table struct {
	// Columns is the sorted union of keys seen across all rows.
	Columns []string

	// Rows preserves the order of the source array. Callers rely on
	// this order; it must never be re-sorted.
	Rows []Row
}

// Decode parses an upstream JSON payload. Numbers are kept as
// json.Number so the integer/float distinction survives.
func Decode(payload []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("cannot decode JSON payload: %w", err)
	}
	return v, nil
}

// Normalize converts a decoded JSON value into a Table.
//
// An object becomes a one-row table whose columns are the object's
// keys. An array of objects becomes one row per element; the column
// set is the union of keys across all rows and keys missing from a
// given row read as null. Nested objects and arrays stay opaque
// structured cells; they are never flattened.
func Normalize(v interface{}) (*Table, error) {
	switch x := v.(type) {
	case map[string]interface{}:
		return fromObjects([]map[string]interface{}{x})
	case []interface{}:
		objects := make([]map[string]interface{}, len(x))
		for i, elem := range x {
			obj, ok := elem.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("cannot normalize: array element %d is not an object", i)
			}
			objects[i] = obj
		}
		return fromObjects(objects)
	default:
		return nil, fmt.Errorf("cannot normalize: document is neither an object nor an array of objects")
	}
}

func fromObjects(objects []map[string]interface{}) (*Table, error) {
	seen := make(map[string]struct{})
	var columns []string
	rows := make([]Row, len(objects))

	for i, obj := range objects {
		row := make(Row, len(obj))
		for k, raw := range obj {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
			row[k] = valueOf(raw)
		}
		rows[i] = row
	}

	// Go maps are unordered, so sort for a deterministic column order.
	sort.Strings(columns)
	if columns == nil {
		columns = []string{}
	}

	return &Table{
		Columns: columns,
		Rows:    rows,
	}, nil
}

// HasColumn reports whether the column appears in the table at all.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Value returns the cell at (row, column); absent keys read as null.
func (t *Table) Value(row int, column string) Value {
	v, ok := t.Rows[row][column]
	if !ok {
		return Null
	}
	return v
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// MarshalJSON renders the table as {"columns": [...], "rows": [...]},
// every row carrying all columns with explicit nulls.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([]map[string]Value, len(t.Rows))
	for i := range t.Rows {
		row := make(map[string]Value, len(t.Columns))
		for _, c := range t.Columns {
			row[c] = t.Value(i, c)
		}
		rows[i] = row
	}

	return json.Marshal(struct {
		Columns []string           `json:"columns"`
		Rows    []map[string]Value `json:"rows"`
	}{
		Columns: t.Columns,
		Rows:    rows,
	})
}
