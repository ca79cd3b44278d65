package tables

import (
	"errors"
	"reflect"
	"testing"
)

const sampleSDML = `{
  "type": "RowTable",
  "schema": [{"name": "id", "type": "number"}, {"name": "name", "type": "string"}],
  "rows": [[1, "Alice"], [2, "Bob"]]
}`

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(sampleSDML))
	if err != nil {
		t.Fatal(err)
	}
	if table.Type != "RowTable" {
		t.Errorf("Type = %q", table.Type)
	}
	want := Schema{{Name: "id", Type: "number"}, {Name: "name", Type: "string"}}
	if !reflect.DeepEqual(table.Schema, want) {
		t.Errorf("Schema = %v, want %v", table.Schema, want)
	}
	if len(table.Rows) != 2 {
		t.Errorf("Rows = %v", table.Rows)
	}
}

func TestParseTableDefaultsType(t *testing.T) {
	table, err := ParseTable([]byte(`{"schema":[{"name":"a","type":"string"}],"rows":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if table.Type != "RowTable" {
		t.Errorf("Type = %q, want RowTable", table.Type)
	}
}

func TestParseTableMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"type": "RowTable"`,
		"wrong type":     `{"type": "ColumnTable", "schema": [{"name": "a"}], "rows": []}`,
		"empty schema":   `{"type": "RowTable", "schema": [], "rows": []}`,
		"unnamed column": `{"type": "RowTable", "schema": [{"type": "string"}], "rows": []}`,
		"dup column":     `{"type": "RowTable", "schema": [{"name": "a"}, {"name": "a"}], "rows": []}`,
		"ragged row":     `{"type": "RowTable", "schema": [{"name": "a"}, {"name": "b"}], "rows": [[1]]}`,
	}
	for name, doc := range cases {
		if _, err := ParseTable([]byte(doc)); !errors.Is(err, ErrMalformedTable) {
			t.Errorf("%s: ParseTable = %v, want ErrMalformedTable", name, err)
		}
	}
}

func TestTableSerializeRoundTrip(t *testing.T) {
	table, err := ParseTable([]byte(sampleSDML))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := table.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseTable(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(table, back) {
		t.Fatalf("round-trip mismatch: %v vs %v", table, back)
	}
}

func TestColumnOperations(t *testing.T) {
	table, err := ParseTable([]byte(`{
		"type": "RowTable",
		"schema": [{"name": "score", "type": "number"}, {"name": "who", "type": "string"}],
		"rows": [[70, "carol"], [95, "alice"], [70, "bob"]]
	}`))
	if err != nil {
		t.Fatal(err)
	}

	col, err := table.Column("score")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(col, []any{70.0, 95.0, 70.0}) {
		t.Errorf("Column(score) = %v", col)
	}

	distinct, err := table.DistinctValues("score")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(distinct, []any{70.0, 95.0}) {
		t.Errorf("DistinctValues(score) = %v", distinct)
	}

	minVal, maxVal, err := table.Range("score")
	if err != nil {
		t.Fatal(err)
	}
	if minVal != 70.0 || maxVal != 95.0 {
		t.Errorf("Range(score) = %v, %v", minVal, maxVal)
	}

	minVal, maxVal, err = table.Range("who")
	if err != nil {
		t.Fatal(err)
	}
	if minVal != "alice" || maxVal != "carol" {
		t.Errorf("Range(who) = %v, %v", minVal, maxVal)
	}

	if _, err := table.Column("nope"); !errors.Is(err, ErrNoSuchColumn) {
		t.Errorf("Column(nope) = %v, want ErrNoSuchColumn", err)
	}
	if _, err := table.DistinctValues("nope"); !errors.Is(err, ErrNoSuchColumn) {
		t.Errorf("DistinctValues(nope) = %v, want ErrNoSuchColumn", err)
	}
}

func TestRangeEmptyTable(t *testing.T) {
	table, err := ParseTable([]byte(`{"schema":[{"name":"a","type":"number"}],"rows":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	minVal, maxVal, err := table.Range("a")
	if err != nil {
		t.Fatal(err)
	}
	if minVal != nil || maxVal != nil {
		t.Fatalf("Range on empty table = %v, %v", minVal, maxVal)
	}
}
