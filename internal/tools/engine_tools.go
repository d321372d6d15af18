package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sensebridge/sensebridge/internal/engine"
)

// CellOut is the wire shape of one matrix cell in tool results.
type CellOut struct {
	Text      string   `json:"text"`
	Num       *float64 `json:"num,omitempty"`
	IsNumeric bool     `json:"is_numeric"`
	Frequency *int64   `json:"frequency,omitempty"`
}

func toCellRows(rows [][]engine.Cell) [][]CellOut {
	out := make([][]CellOut, 0, len(rows))
	for _, row := range rows {
		r := make([]CellOut, 0, len(row))
		for _, c := range row {
			r = append(r, CellOut{Text: c.Text, Num: c.Num, IsNumeric: c.IsNumeric, Frequency: c.Frequency})
		}
		out = append(out, r)
	}
	return out
}

// ---- script and metadata ---------------------------------------------------

type getScriptOut struct {
	Script string `json:"script"`
	Lines  int    `json:"lines"`
}

func (s *Service) getScript(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getScriptOut, error) {
	var out getScriptOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		script, err := c.GetScript(ctx, h)
		if err != nil {
			return err
		}
		out = getScriptOut{Script: script.Text, Lines: script.Lines}
		return nil
	})
	return nil, out, err
}

// FieldOut is one data-model field in tool results.
type FieldOut struct {
	Name           string `json:"name"`
	Table          string `json:"table"`
	Type           string `json:"type"`
	DistinctValues int    `json:"distinct_values"`
	RowCount       int    `json:"row_count"`
	IsKey          bool   `json:"is_key,omitempty"`
	IsSystem       bool   `json:"is_system,omitempty"`
	IsHidden       bool   `json:"is_hidden,omitempty"`
}

type getFieldsOut struct {
	Fields []FieldOut `json:"fields"`
	Total  int        `json:"total"`
}

func (s *Service) getFields(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getFieldsOut, error) {
	var out getFieldsOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		fields, err := c.GetFields(ctx, h)
		if err != nil {
			return err
		}
		for _, f := range fields {
			out.Fields = append(out.Fields, FieldOut{
				Name: f.Name, Table: f.Table, Type: string(f.Type),
				DistinctValues: f.DistinctValues, RowCount: f.RowCount,
				IsKey: f.IsKey, IsSystem: f.IsSystem, IsHidden: f.IsHidden,
			})
		}
		out.Total = len(out.Fields)
		return nil
	})
	return nil, out, err
}

type sheetOut struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type getSheetsOut struct {
	Sheets []sheetOut `json:"sheets"`
	Total  int        `json:"total"`
}

func (s *Service) getSheets(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getSheetsOut, error) {
	var out getSheetsOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		sheets, err := c.GetSheets(ctx, h)
		if err != nil {
			return err
		}
		for _, sh := range sheets {
			out.Sheets = append(out.Sheets, sheetOut{ID: sh.ID, Title: sh.Title, Description: sh.Description})
		}
		out.Total = len(out.Sheets)
		return nil
	})
	return nil, out, err
}

type getDataModelOut struct {
	TotalObjects   int `json:"total_objects"`
	Sheets         int `json:"sheets"`
	Visualizations int `json:"visualizations"`
	Measures       int `json:"measures"`
	Dimensions     int `json:"dimensions"`
}

func (s *Service) getDataModel(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getDataModelOut, error) {
	var out getDataModelOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		dm, err := c.GetDataModel(ctx, h)
		if err != nil {
			return err
		}
		out = getDataModelOut{
			TotalObjects:   dm.TotalObjects,
			Sheets:         len(dm.Sheets),
			Visualizations: len(dm.Visualizations),
			Measures:       len(dm.Measures),
			Dimensions:     len(dm.Dimensions),
		}
		return nil
	})
	return nil, out, err
}

type getAppPropertiesOut struct {
	Properties json.RawMessage `json:"properties"`
}

func (s *Service) getAppProperties(ctx context.Context, _ *mcp.CallToolRequest, in appIDIn) (*mcp.CallToolResult, getAppPropertiesOut, error) {
	var out getAppPropertiesOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		props, err := c.AppProperties(ctx, h)
		if err != nil {
			return err
		}
		out.Properties = props
		return nil
	})
	return nil, out, err
}

// ---- data access -----------------------------------------------------------

type getTableDataIn struct {
	AppID     string `json:"app_id" jsonschema:"application id"`
	TableName string `json:"table_name,omitempty" jsonschema:"table to scan; all tables' fields when omitted"`
	MaxRows   int    `json:"max_rows,omitempty" jsonschema:"row cap, defaults to the configured limit"`
}

type getTableDataOut struct {
	Table           string      `json:"table,omitempty"`
	Columns         []string    `json:"columns"`
	Rows            [][]CellOut `json:"rows"`
	TotalRows       int         `json:"total_rows"`
	TruncatedFields bool        `json:"truncated_fields,omitempty"`
}

func (s *Service) getTableData(ctx context.Context, _ *mcp.CallToolRequest, in getTableDataIn) (*mcp.CallToolResult, getTableDataOut, error) {
	var out getTableDataOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		td, err := c.GetTableData(ctx, h, in.TableName, s.maxRows(in.MaxRows))
		if err != nil {
			return err
		}
		out = getTableDataOut{
			Table:           td.Table,
			Columns:         td.Columns,
			Rows:            toCellRows(td.Rows),
			TotalRows:       td.TotalRows,
			TruncatedFields: td.TruncatedFields,
		}
		return nil
	})
	return nil, out, err
}

type getFieldValuesIn struct {
	AppID            string `json:"app_id" jsonschema:"application id"`
	FieldName        string `json:"field_name" jsonschema:"field to list"`
	MaxValues        int    `json:"max_values,omitempty" jsonschema:"value cap, default 100"`
	IncludeFrequency bool   `json:"include_frequency,omitempty" jsonschema:"include per-value occurrence counts"`
}

type fieldValueOut struct {
	Value     string   `json:"value"`
	Num       *float64 `json:"num,omitempty"`
	Frequency *int64   `json:"frequency,omitempty"`
}

type getFieldValuesOut struct {
	Field       string          `json:"field"`
	Values      []fieldValueOut `json:"values"`
	TotalValues int             `json:"total_values"`
}

func (s *Service) getFieldValues(ctx context.Context, _ *mcp.CallToolRequest, in getFieldValuesIn) (*mcp.CallToolResult, getFieldValuesOut, error) {
	maxValues := in.MaxValues
	if maxValues <= 0 {
		maxValues = 100
	}
	var out getFieldValuesOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		fv, err := c.GetFieldValues(ctx, h, in.FieldName, maxValues, in.IncludeFrequency)
		if err != nil {
			return err
		}
		out = getFieldValuesOut{Field: fv.Field, TotalValues: fv.TotalValues}
		for _, v := range fv.Values {
			out.Values = append(out.Values, fieldValueOut{Value: v.Value, Num: v.Num, Frequency: v.Frequency})
		}
		return nil
	})
	return nil, out, err
}

type getFieldStatisticsIn struct {
	AppID     string `json:"app_id" jsonschema:"application id"`
	FieldName string `json:"field_name" jsonschema:"field to profile"`
}

type getFieldStatisticsOut struct {
	Field          string             `json:"field"`
	Stats          map[string]CellOut `json:"stats"`
	NullCount      *float64           `json:"null_count,omitempty"`
	NullPercentage *float64           `json:"null_percentage,omitempty"`
	Completeness   *float64           `json:"completeness,omitempty"`
}

func (s *Service) getFieldStatistics(ctx context.Context, _ *mcp.CallToolRequest, in getFieldStatisticsIn) (*mcp.CallToolResult, getFieldStatisticsOut, error) {
	var out getFieldStatisticsOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		stats, err := c.GetFieldStatistics(ctx, h, in.FieldName)
		if err != nil {
			return err
		}
		out = getFieldStatisticsOut{
			Field:          stats.Field,
			Stats:          make(map[string]CellOut, len(stats.Stats)),
			NullCount:      stats.NullCount,
			NullPercentage: stats.NullPercentage,
			Completeness:   stats.Completeness,
		}
		for k, c := range stats.Stats {
			out.Stats[k] = CellOut{Text: c.Text, Num: c.Num, IsNumeric: c.IsNumeric}
		}
		return nil
	})
	return nil, out, err
}

type createHypercubeIn struct {
	AppID      string   `json:"app_id" jsonschema:"application id"`
	Dimensions []string `json:"dimensions,omitempty" jsonschema:"dimension field names"`
	Measures   []string `json:"measures,omitempty" jsonschema:"measure expressions, e.g. Sum(Sales)"`
	MaxRows    int      `json:"max_rows,omitempty" jsonschema:"row cap, defaults to the configured limit"`
}

type createHypercubeOut struct {
	Columns   []string    `json:"columns"`
	Rows      [][]CellOut `json:"rows"`
	TotalRows int         `json:"total_rows"`
}

func (s *Service) createHypercube(ctx context.Context, _ *mcp.CallToolRequest, in createHypercubeIn) (*mcp.CallToolResult, createHypercubeOut, error) {
	var out createHypercubeOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		res, err := c.CreateHypercube(ctx, h, engine.HypercubeRequest{
			Dimensions: in.Dimensions,
			Measures:   in.Measures,
			MaxRows:    s.maxRows(in.MaxRows),
		})
		if err != nil {
			return err
		}
		out = createHypercubeOut{Columns: res.Columns, Rows: toCellRows(res.Rows), TotalRows: res.TotalRows}
		return nil
	})
	return nil, out, err
}

type createDataExportIn struct {
	AppID     string              `json:"app_id" jsonschema:"application id"`
	TableName string              `json:"table_name,omitempty" jsonschema:"table whose fields to export"`
	Fields    []string            `json:"fields,omitempty" jsonschema:"explicit field list, overrides table_name"`
	Format    string              `json:"format,omitempty" jsonschema:"json, csv or simple; default json"`
	MaxRows   int                 `json:"max_rows,omitempty" jsonschema:"row cap, defaults to the configured limit"`
	Filters   map[string][]string `json:"filters,omitempty" jsonschema:"allowed values per field"`
}

type createDataExportOut struct {
	Format          string   `json:"format"`
	Fields          []string `json:"fields"`
	Content         string   `json:"content"`
	ExportedRows    int      `json:"exported_rows"`
	TotalRows       int      `json:"total_rows"`
	TruncatedFields bool     `json:"truncated_fields,omitempty"`
}

func (s *Service) createDataExport(ctx context.Context, _ *mcp.CallToolRequest, in createDataExportIn) (*mcp.CallToolResult, createDataExportOut, error) {
	format := in.Format
	if format == "" {
		format = "json"
	}
	var out createDataExportOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		exp, err := c.CreateDataExport(ctx, h, engine.ExportRequest{
			Table:   in.TableName,
			Fields:  in.Fields,
			Format:  format,
			MaxRows: s.maxRows(in.MaxRows),
			Filters: in.Filters,
		})
		if err != nil {
			return err
		}
		out = createDataExportOut{
			Format:          exp.Format,
			Fields:          exp.Fields,
			Content:         exp.Content,
			ExportedRows:    exp.ExportedRows,
			TotalRows:       exp.TotalRows,
			TruncatedFields: exp.TruncatedFields,
		}
		return nil
	})
	return nil, out, err
}

type evaluateIn struct {
	AppID      string `json:"app_id" jsonschema:"application id"`
	Expression string `json:"expression" jsonschema:"expression to evaluate server-side"`
}

type evaluateOut struct {
	Result json.RawMessage `json:"result"`
}

func (s *Service) evaluateExpression(ctx context.Context, _ *mcp.CallToolRequest, in evaluateIn) (*mcp.CallToolResult, evaluateOut, error) {
	var out evaluateOut
	err := s.withApp(ctx, in.AppID, func(c *engine.Client, h int) error {
		res, err := c.Evaluate(ctx, h, in.Expression)
		if err != nil {
			return err
		}
		out.Result = res
		return nil
	})
	return nil, out, err
}

type docListOut struct {
	Docs []engine.DocInfo `json:"docs"`
}

// getDocList talks to the engine session level, no document open.
func (s *Service) getDocList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyIn) (*mcp.CallToolResult, docListOut, error) {
	c, err := engine.Dial(ctx, s.engineOpts)
	if err != nil {
		return nil, docListOut{}, err
	}
	defer c.Close()

	docs, err := c.DocList(ctx)
	if err != nil {
		return nil, docListOut{}, err
	}
	return nil, docListOut{Docs: docs}, nil
}
