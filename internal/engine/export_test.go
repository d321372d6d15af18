package engine

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
)

func textCell(s string) Cell { return Cell{Text: s} }

func numCell(s string, v float64) Cell {
	return Cell{Text: s, Num: &v, IsNumeric: true}
}

func sampleRows() ([]string, [][]Cell) {
	cols := []string{"Region", "Amount"}
	rows := [][]Cell{
		{textCell("North"), numCell("100", 100)},
		{textCell(`He said "hi", twice`), numCell("2.5", 2.5)},
	}
	return cols, rows
}

func TestRenderExport_JSON(t *testing.T) {
	cols, rows := sampleRows()
	out, err := renderExport("json", cols, rows)
	if err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}
	first := decoded[0]
	if first["Region"]["text"] != "North" {
		t.Errorf("unexpected region: %v", first["Region"])
	}
	if first["Amount"]["numeric"] != float64(100) || first["Amount"]["is_numeric"] != true {
		t.Errorf("unexpected amount: %v", first["Amount"])
	}
	if _, ok := first["Region"]["numeric"]; ok {
		t.Error("text cell must not carry a numeric component")
	}
}

func TestRenderExport_CSVQuoting(t *testing.T) {
	cols, rows := sampleRows()
	out, err := renderExport("csv", cols, rows)
	if err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "Region" || records[0][1] != "Amount" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[2][0] != `He said "hi", twice` {
		t.Errorf("quoting lost: %q", records[2][0])
	}
	if records[1][1] != "100" {
		t.Errorf("numeric cell must render its text: %q", records[1][1])
	}
}

func TestRenderExport_Simple(t *testing.T) {
	cols, rows := sampleRows()
	out, err := renderExport("simple", cols, rows)
	if err != nil {
		t.Fatal(err)
	}
	var decoded [][]string
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 || decoded[0][0] != "North" || decoded[0][1] != "100" {
		t.Errorf("unexpected output: %v", decoded)
	}
}

func TestRenderExport_UnknownFormat(t *testing.T) {
	if _, err := renderExport("xml", nil, nil); !IsKind(err, KindUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestFilterDim(t *testing.T) {
	if got := filterDim("Region", nil); got != "Region" {
		t.Errorf("unfiltered field must pass through, got %q", got)
	}
	got := filterDim("Region", []string{"North", "O'Brien"})
	want := `=If(Match([Region], 'North', 'O''Brien'), [Region], Null())`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
