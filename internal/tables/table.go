package tables

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// rowTableType is the only SDML table type this service hosts.
const rowTableType = "RowTable"

// Column is one schema entry of an SDML table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Schema is the ordered column list of a table.
type Schema []Column

// Table is a parsed SDML row table. Once loaded it is treated as immutable:
// updates replace the whole object, never mutate it in place.
type Table struct {
	Type   string  `json:"type"`
	Schema Schema  `json:"schema"`
	Rows   [][]any `json:"rows"`
}

// ParseTable parses and validates an SDML table document. Any shape problem
// is reported as ErrMalformedTable, distinct from a missing blob.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse: %v: %w", err, ErrMalformedTable)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) validate() error {
	if t.Type == "" {
		t.Type = rowTableType
	}
	if t.Type != rowTableType {
		return fmt.Errorf("unsupported table type %q: %w", t.Type, ErrMalformedTable)
	}
	if len(t.Schema) == 0 {
		return fmt.Errorf("empty schema: %w", ErrMalformedTable)
	}
	seen := make(map[string]bool, len(t.Schema))
	for i, col := range t.Schema {
		if col.Name == "" {
			return fmt.Errorf("column %d has no name: %w", i, ErrMalformedTable)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column %q: %w", col.Name, ErrMalformedTable)
		}
		seen[col.Name] = true
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Schema) {
			return fmt.Errorf("row %d has %d values, schema has %d columns: %w", i, len(row), len(t.Schema), ErrMalformedTable)
		}
	}
	return nil
}

// Bytes serializes the table back to its SDML JSON form.
func (t *Table) Bytes() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

func (t *Table) columnIndex(name string) (int, error) {
	for i, col := range t.Schema {
		if col.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, ErrNoSuchColumn)
}

// Column returns the values of the named column in row order.
func (t *Table) Column(name string) ([]any, error) {
	idx, err := t.columnIndex(name)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// DistinctValues returns the sorted distinct values of the named column.
func (t *Table) DistinctValues(name string) ([]any, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(values))
	distinct := make([]any, 0, len(values))
	for _, v := range values {
		repr := fmt.Sprint(v)
		if !seen[repr] {
			seen[repr] = true
			distinct = append(distinct, v)
		}
	}
	sort.SliceStable(distinct, func(i, j int) bool {
		return compareValues(distinct[i], distinct[j]) < 0
	})
	return distinct, nil
}

// Range returns the minimum and maximum values of the named column, or nils
// for an empty table.
func (t *Table) Range(name string) (minVal, maxVal any, err error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	if len(values) == 0 {
		return nil, nil, nil
	}
	minVal, maxVal = values[0], values[0]
	for _, v := range values[1:] {
		if compareValues(v, minVal) < 0 {
			minVal = v
		}
		if compareValues(v, maxVal) > 0 {
			maxVal = v
		}
	}
	return minVal, maxVal, nil
}

// compareValues orders JSON scalar values: numbers numerically, booleans
// false-before-true, everything else by string form.
func compareValues(a, b any) int {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
