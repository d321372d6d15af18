package engine

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// ExportRequest selects the rows and the serialization of a data export.
// Either Table or Fields must be set; Filters narrows rows to the listed
// values per field.
type ExportRequest struct {
	Table   string
	Fields  []string
	Format  string // json, csv or simple
	MaxRows int
	Filters map[string][]string
}

// Export is a rendered data export. Content is the full serialized payload.
type Export struct {
	Format          string
	Fields          []string
	Content         string
	ExportedRows    int
	TotalRows       int
	TruncatedFields bool
}

// CreateDataExport computes a dimensions-only hypercube over the selected
// fields and renders it in the requested format. Filters become conditional
// dimension expressions so the narrowing happens server-side.
func (c *Client) CreateDataExport(ctx context.Context, appHandle int, req ExportRequest) (*Export, error) {
	switch req.Format {
	case "json", "csv", "simple":
	default:
		return nil, errf(KindUnsupportedFormat, "export format %q not supported", req.Format)
	}
	if req.MaxRows <= 0 {
		return nil, errf(KindValidation, "max rows must be positive, got %d", req.MaxRows)
	}
	if req.Table == "" && len(req.Fields) == 0 {
		return nil, errf(KindValidation, "either a table name or a field list is required")
	}
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}

	cols := req.Fields
	if len(cols) == 0 {
		fields, err := c.cachedFields(ctx, appHandle)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.Table == req.Table {
				cols = append(cols, f.Name)
			}
		}
		if len(cols) == 0 {
			return nil, errf(KindValidation, "table %q not found or has no fields", req.Table)
		}
	}
	truncated := false
	if len(cols) > maxExportFields {
		cols = cols[:maxExportFields]
		truncated = true
	}

	dims := make([]string, len(cols))
	for i, f := range cols {
		dims[i] = filterDim(f, req.Filters[f])
	}

	def := newCubeDef("data-export", dims, nil, min(c.opts.pageSize(), req.MaxRows))
	rows, total, err := c.fetchCube(ctx, appHandle, def, len(dims), req.MaxRows)
	if err != nil {
		return nil, err
	}

	content, err := renderExport(req.Format, cols, rows)
	if err != nil {
		return nil, err
	}
	return &Export{
		Format:          req.Format,
		Fields:          cols,
		Content:         content,
		ExportedRows:    len(rows),
		TotalRows:       total,
		TruncatedFields: truncated,
	}, nil
}

// filterDim turns a field with a value filter into a conditional dimension
// expression; unfiltered fields pass through as plain field references.
func filterDim(field string, values []string) string {
	if len(values) == 0 {
		return field
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("=If(Match([%s], %s), [%s], Null())",
		field, strings.Join(quoted, ", "), field)
}

// renderExport serializes a cell matrix. json is an array of objects keyed
// by field name, csv is RFC 4180 with a header row, simple is an array of
// text-only rows.
func renderExport(format string, cols []string, rows [][]Cell) (string, error) {
	switch format {
	case "json":
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			rec := make(map[string]any, len(cols))
			for i, col := range cols {
				if i >= len(row) {
					break
				}
				cell := map[string]any{
					"text":       row[i].Text,
					"is_numeric": row[i].IsNumeric,
				}
				if row[i].Num != nil {
					cell["numeric"] = *row[i].Num
				}
				rec[col] = cell
			}
			out = append(out, rec)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return "", wrapErr(KindProtocol, err, "encode export: %v", err)
		}
		return string(data), nil

	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(cols); err != nil {
			return "", wrapErr(KindProtocol, err, "encode export: %v", err)
		}
		record := make([]string, len(cols))
		for _, row := range rows {
			for i := range cols {
				if i < len(row) {
					record[i] = row[i].Text
				} else {
					record[i] = ""
				}
			}
			if err := w.Write(record); err != nil {
				return "", wrapErr(KindProtocol, err, "encode export: %v", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", wrapErr(KindProtocol, err, "encode export: %v", err)
		}
		return buf.String(), nil

	case "simple":
		out := make([][]string, 0, len(rows))
		for _, row := range rows {
			texts := make([]string, 0, len(row))
			for _, cell := range row {
				texts = append(texts, cell.Text)
			}
			out = append(out, texts)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return "", wrapErr(KindProtocol, err, "encode export: %v", err)
		}
		return string(data), nil
	}
	return "", errf(KindUnsupportedFormat, "export format %q not supported", format)
}
