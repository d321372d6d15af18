package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// GlobalHandle addresses session-level methods such as OpenDoc.
const GlobalHandle = -1

// maxTableFields caps the width of table-scan hypercubes.
const maxTableFields = 20

// maxExportFields caps the width of export hypercubes.
const maxExportFields = 50

// Client speaks the engine's WebSocket JSON-RPC dialect. One Client owns
// one connection; domain operations translate into correlator invokes plus
// handle bookkeeping.
type Client struct {
	opts    Options
	tr      *Transport
	corr    *Correlator
	handles *HandleRegistry

	mu     sync.Mutex
	fields map[int][]FieldDescriptor // per app handle, recomputed per open
}

// Dial connects to the engine and starts the receive loop.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	tr, err := dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:    opts,
		tr:      tr,
		corr:    NewCorrelator(tr, opts.timeout()),
		handles: NewHandleRegistry(),
		fields:  make(map[int][]FieldDescriptor),
	}
	go func() {
		err := tr.ReadLoop(c.corr.HandleFrame)
		c.corr.FailAll(err)
	}()
	return c, nil
}

// Close tears the connection down; every in-flight call fails with a
// connection-closed error.
func (c *Client) Close() error {
	err := c.tr.Close()
	c.corr.FailAll(errf(KindConnection, "connection closed"))
	return err
}

// Handles exposes the registry; used by the status command and tests.
func (c *Client) Handles() *HandleRegistry { return c.handles }

func (c *Client) invoke(ctx context.Context, method string, params any, handle int) (json.RawMessage, error) {
	return c.corr.Invoke(ctx, method, params, handle)
}

// checkOpen rejects operations on closed or unknown app handles before any
// network round trip.
func (c *Client) checkOpen(appHandle int) error {
	return c.handles.Resolve(appHandle)
}

// ---- session-level operations ---------------------------------------------

// DocInfo is one entry of the engine's document list.
type DocInfo struct {
	ID       string `json:"qDocId"`
	Name     string `json:"qDocName"`
	Title    string `json:"qTitle"`
	FileSize int64  `json:"qFileSize"`
}

// DocList enumerates the documents the session identity may open.
func (c *Client) DocList(ctx context.Context) ([]DocInfo, error) {
	res, err := c.invoke(ctx, "GetDocList", nil, GlobalHandle)
	if err != nil {
		return nil, err
	}
	var out struct {
		DocList []DocInfo `json:"qDocList"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, wrapErr(KindProtocol, err, "GetDocList: %v", err)
	}
	return out.DocList, nil
}

type handleReturn struct {
	Return struct {
		Handle    int    `json:"qHandle"`
		GenericID string `json:"qGenericId"`
	} `json:"qReturn"`
}

// OpenApp opens a document without loading data and registers the returned
// handle as a root.
func (c *Client) OpenApp(ctx context.Context, appID string) (int, error) {
	res, err := c.invoke(ctx, "OpenDoc", []any{appID, "", "", "", true}, GlobalHandle)
	if err != nil {
		return 0, classifyOpenError(err, appID)
	}
	var out handleReturn
	if err := json.Unmarshal(res, &out); err != nil {
		return 0, wrapErr(KindProtocol, err, "OpenDoc: %v", err)
	}
	h := out.Return.Handle
	c.handles.RegisterRoot(h)
	slog.Debug("engine: app opened", "app", appID, "handle", h)
	return h, nil
}

// classifyOpenError maps the engine's OpenDoc failures onto the domain
// taxonomy; anything unrecognized passes through as the remote error.
func classifyOpenError(err error, appID string) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRemote {
		return err
	}
	msg := strings.ToLower(e.Msg)
	switch {
	case e.Code == 1002, strings.Contains(msg, "not found"), strings.Contains(msg, "doesn't exist"):
		return &Error{Kind: KindAppNotFound, Msg: fmt.Sprintf("app %q not found", appID), Code: e.Code, Err: err}
	case e.Code == 5, strings.Contains(msg, "access denied"), strings.Contains(msg, "forbidden"):
		return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf("access to app %q denied", appID), Code: e.Code, Err: err}
	}
	return err
}

// CloseApp closes the document and invalidates the handle subtree.
func (c *Client) CloseApp(ctx context.Context, appHandle int) error {
	if err := c.checkOpen(appHandle); err != nil {
		return err
	}
	_, err := c.invoke(ctx, "CloseDoc", nil, appHandle)
	if cerr := c.handles.CloseRoot(appHandle); cerr != nil {
		return cerr
	}
	c.mu.Lock()
	delete(c.fields, appHandle)
	c.mu.Unlock()
	return err
}

// ---- app metadata ----------------------------------------------------------

// AppProperties returns the raw property bag of an open app.
func (c *Client) AppProperties(ctx context.Context, appHandle int) (json.RawMessage, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	return c.invoke(ctx, "GetAppProperties", nil, appHandle)
}

// Script is a load script with its client-computed line count.
type Script struct {
	Text  string
	Lines int
}

// GetScript fetches the app's load script.
func (c *Client) GetScript(ctx context.Context, appHandle int) (Script, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return Script{}, err
	}
	res, err := c.invoke(ctx, "GetScript", nil, appHandle)
	if err != nil {
		return Script{}, err
	}
	var out struct {
		Script string `json:"qScript"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return Script{}, wrapErr(KindProtocol, err, "GetScript: %v", err)
	}
	s := Script{Text: out.Script}
	if out.Script != "" {
		s.Lines = strings.Count(out.Script, "\n") + 1
	}
	return s, nil
}

// FieldType is the inferred content tag of a field.
type FieldType string

const (
	FieldNumeric   FieldType = "numeric"
	FieldText      FieldType = "text"
	FieldTimestamp FieldType = "timestamp"
	FieldMixed     FieldType = "mixed"
)

// FieldDescriptor describes one field of the data model. Read-only,
// recomputed per app-open session.
type FieldDescriptor struct {
	Name           string
	Table          string
	Type           FieldType
	DistinctValues int
	RowCount       int
	IsKey          bool
	IsSystem       bool
	IsHidden       bool
	Tags           []string
}

// tablesAndKeysArgs mirrors the original client's GetTablesAndKeys call:
// max dimensions, min dimensions, max tables, include system tables,
// exclude hidden fields.
var tablesAndKeysArgs = []any{
	map[string]int{"qcx": 1000, "qcy": 1000},
	map[string]int{"qcx": 0, "qcy": 0},
	30,
	true,
	false,
}

type wireTable struct {
	Name    string      `json:"qName"`
	NoRows  int         `json:"qNoOfRows"`
	Fields  []wireField `json:"qFields"`
	System  bool        `json:"qIsSystem"`
	Comment string      `json:"qComment"`
}

type wireField struct {
	Name           string   `json:"qName"`
	Tags           []string `json:"qTags"`
	DistinctValues int      `json:"qnTotalDistinctValues"`
	Rows           int      `json:"qnRows"`
	IsKey          bool     `json:"qIsKey"`
	IsSystem       bool     `json:"qIsSystem"`
	IsHidden       bool     `json:"qIsHidden"`
}

// GetFields enumerates the data-model fields of an open app.
func (c *Client) GetFields(ctx context.Context, appHandle int) ([]FieldDescriptor, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	res, err := c.invoke(ctx, "GetTablesAndKeys", tablesAndKeysArgs, appHandle)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tables []wireTable `json:"qtr"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, wrapErr(KindProtocol, err, "GetTablesAndKeys: %v", err)
	}

	var fields []FieldDescriptor
	for _, tbl := range out.Tables {
		for _, f := range tbl.Fields {
			fields = append(fields, FieldDescriptor{
				Name:           f.Name,
				Table:          tbl.Name,
				Type:           inferFieldType(f.Tags),
				DistinctValues: f.DistinctValues,
				RowCount:       f.Rows,
				IsKey:          f.IsKey,
				IsSystem:       f.IsSystem,
				IsHidden:       f.IsHidden,
				Tags:           f.Tags,
			})
		}
	}
	c.mu.Lock()
	c.fields[appHandle] = fields
	c.mu.Unlock()
	return fields, nil
}

// inferFieldType maps the engine's field tags onto a type tag, falling
// back to mixed when the engine itself reports mixed content.
func inferFieldType(tags []string) FieldType {
	var numeric, text, timestamp bool
	for _, t := range tags {
		switch t {
		case "$numeric", "$integer":
			numeric = true
		case "$text", "$ascii":
			text = true
		case "$date", "$timestamp", "$time":
			timestamp = true
		}
	}
	switch {
	case timestamp:
		return FieldTimestamp
	case numeric && !text:
		return FieldNumeric
	case text && !numeric:
		return FieldText
	default:
		return FieldMixed
	}
}

// cachedFields returns the field list, fetching it on first use.
func (c *Client) cachedFields(ctx context.Context, appHandle int) ([]FieldDescriptor, error) {
	c.mu.Lock()
	fields, ok := c.fields[appHandle]
	c.mu.Unlock()
	if ok {
		return fields, nil
	}
	return c.GetFields(ctx, appHandle)
}

// ---- sheets and data model -------------------------------------------------

// Sheet is one sheet of an app.
type Sheet struct {
	ID          string
	Title       string
	Description string
}

// sheetListDef is the SheetList session object the engine expects for
// sheet enumeration.
var sheetListDef = map[string]any{
	"qInfo": map[string]any{"qType": "SheetList"},
	"qAppObjectListDef": map[string]any{
		"qType": "sheet",
		"qData": map[string]any{
			"title":       "/qMetaDef/title",
			"description": "/qMetaDef/description",
			"rank":        "/rank",
		},
	},
}

// GetSheets enumerates the app's sheets via a transient SheetList object.
func (c *Client) GetSheets(ctx context.Context, appHandle int) ([]Sheet, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	res, err := c.invoke(ctx, "CreateSessionObject", []any{sheetListDef}, appHandle)
	if err != nil {
		return nil, err
	}
	var created handleReturn
	if err := json.Unmarshal(res, &created); err != nil {
		return nil, wrapErr(KindProtocol, err, "CreateSessionObject: %v", err)
	}
	listHandle := created.Return.Handle
	if err := c.handles.RegisterChild(appHandle, listHandle); err != nil {
		return nil, err
	}
	defer c.handles.Release(listHandle)

	layout, err := c.invoke(ctx, "GetLayout", nil, listHandle)
	if err != nil {
		return nil, err
	}
	var out struct {
		Layout struct {
			AppObjectList struct {
				Items []struct {
					Info struct {
						ID string `json:"qId"`
					} `json:"qInfo"`
					Meta struct {
						Title       string `json:"title"`
						Description string `json:"description"`
					} `json:"qMeta"`
				} `json:"qItems"`
			} `json:"qAppObjectList"`
		} `json:"qLayout"`
	}
	if err := json.Unmarshal(layout, &out); err != nil {
		return nil, wrapErr(KindProtocol, err, "GetLayout: %v", err)
	}
	sheets := make([]Sheet, 0, len(out.Layout.AppObjectList.Items))
	for _, it := range out.Layout.AppObjectList.Items {
		sheets = append(sheets, Sheet{
			ID:          it.Info.ID,
			Title:       it.Meta.Title,
			Description: it.Meta.Description,
		})
	}
	return sheets, nil
}

// DataModel summarizes the app's object structure.
type DataModel struct {
	TotalObjects   int
	Sheets         []ObjectInfo
	Visualizations []ObjectInfo
	Measures       []ObjectInfo
	Dimensions     []ObjectInfo
}

// ObjectInfo identifies one generic object.
type ObjectInfo struct {
	ID   string `json:"qId"`
	Type string `json:"qType"`
}

var visualizationTypes = map[string]bool{
	"table": true, "barchart": true, "linechart": true, "piechart": true,
	"combochart": true, "kpi": true, "listbox": true,
}

// GetDataModel categorizes the app's objects via GetAllInfos.
func (c *Client) GetDataModel(ctx context.Context, appHandle int) (*DataModel, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	res, err := c.invoke(ctx, "GetAllInfos", nil, appHandle)
	if err != nil {
		return nil, err
	}
	var out struct {
		Infos []ObjectInfo `json:"qInfos"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, wrapErr(KindProtocol, err, "GetAllInfos: %v", err)
	}
	dm := &DataModel{TotalObjects: len(out.Infos)}
	for _, info := range out.Infos {
		switch {
		case info.Type == "sheet":
			dm.Sheets = append(dm.Sheets, info)
		case info.Type == "measure":
			dm.Measures = append(dm.Measures, info)
		case info.Type == "dimension":
			dm.Dimensions = append(dm.Dimensions, info)
		case visualizationTypes[info.Type]:
			dm.Visualizations = append(dm.Visualizations, info)
		}
	}
	return dm, nil
}

// Evaluate computes one expression server-side and returns the raw qReturn.
func (c *Client) Evaluate(ctx context.Context, appHandle int, expression string) (json.RawMessage, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	res, err := c.invoke(ctx, "Evaluate",
		map[string]string{"qExpression": expression}, appHandle)
	if err != nil {
		return nil, err
	}
	var out struct {
		Return json.RawMessage `json:"qReturn"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, wrapErr(KindProtocol, err, "Evaluate: %v", err)
	}
	return out.Return, nil
}

// ---- hypercubes ------------------------------------------------------------

type cubeSize struct {
	Cx int `json:"qcx"`
	Cy int `json:"qcy"`
}

type dataPage struct {
	Matrix [][]Cell `json:"qMatrix"`
}

type hyperCubeLayout struct {
	Size      cubeSize   `json:"qSize"`
	DataPages []dataPage `json:"qDataPages"`
}

// CreateHypercube computes a hypercube and returns up to req.MaxRows rows,
// paginating past the engine's per-call page size. The transient session
// object is destroyed before returning.
func (c *Client) CreateHypercube(ctx context.Context, appHandle int, req HypercubeRequest) (*HypercubeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("hypercube-%dd-%dm", len(req.Dimensions), len(req.Measures))
	def := newCubeDef(id, req.Dimensions, req.Measures, min(c.opts.pageSize(), req.MaxRows))
	rows, total, err := c.fetchCube(ctx, appHandle, def, req.Width(), req.MaxRows)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, req.Width())
	cols = append(cols, req.Dimensions...)
	cols = append(cols, req.Measures...)
	return &HypercubeResult{
		Columns:   cols,
		Rows:      rows,
		TotalRows: total,
		TotalCols: req.Width(),
	}, nil
}

// fetchCube creates the session object, drains its matrix up to maxRows in
// server order, and destroys it. Pages never duplicate or drop rows: the
// next fetch always starts at the number of rows already collected.
func (c *Client) fetchCube(ctx context.Context, appHandle int, def hypercubeObjectDef, width, maxRows int) ([][]Cell, int, error) {
	res, err := c.invoke(ctx, "CreateSessionObject", []any{def}, appHandle)
	if err != nil {
		return nil, 0, err
	}
	var created handleReturn
	if err := json.Unmarshal(res, &created); err != nil {
		return nil, 0, wrapErr(KindProtocol, err, "CreateSessionObject: %v", err)
	}
	cubeHandle := created.Return.Handle
	if err := c.handles.RegisterChild(appHandle, cubeHandle); err != nil {
		return nil, 0, err
	}
	defer func() {
		if _, derr := c.invoke(ctx, "DestroySessionObject", []any{def.Info.ID}, appHandle); derr != nil {
			slog.Warn("engine: destroy session object failed", "id", def.Info.ID, "err", derr)
		}
		c.handles.Release(cubeHandle)
	}()

	layoutRes, err := c.invoke(ctx, "GetLayout", nil, cubeHandle)
	if err != nil {
		return nil, 0, err
	}
	var layout struct {
		Layout struct {
			HyperCube *hyperCubeLayout `json:"qHyperCube"`
		} `json:"qLayout"`
	}
	if err := json.Unmarshal(layoutRes, &layout); err != nil {
		return nil, 0, wrapErr(KindProtocol, err, "GetLayout: %v", err)
	}
	cube := layout.Layout.HyperCube
	if cube == nil {
		return nil, 0, errf(KindProtocol, "no hypercube in layout")
	}

	total := cube.Size.Cy
	want := min(maxRows, total)
	rows := make([][]Cell, 0, want)
	for _, page := range cube.DataPages {
		for _, row := range page.Matrix {
			if len(rows) == want {
				break
			}
			rows = append(rows, row)
		}
	}

	// Page past the initial fetch until the row budget or the cube is
	// exhausted. The engine may return fewer rows per call than asked.
	for len(rows) < want {
		height := min(c.opts.pageSize(), want-len(rows))
		pageRes, err := c.invoke(ctx, "GetHyperCubeData", []any{
			map[string]any{
				"qPath": "/qHyperCubeDef",
				"qPages": []dataFetch{{
					Top: len(rows), Left: 0, Height: height, Width: width,
				}},
			},
		}, cubeHandle)
		if err != nil {
			return nil, 0, err
		}
		var pages struct {
			DataPages []dataPage `json:"qDataPages"`
		}
		if err := json.Unmarshal(pageRes, &pages); err != nil {
			return nil, 0, wrapErr(KindProtocol, err, "GetHyperCubeData: %v", err)
		}
		got := 0
		for _, page := range pages.DataPages {
			for _, row := range page.Matrix {
				if len(rows) == want {
					break
				}
				rows = append(rows, row)
				got++
			}
		}
		if got == 0 {
			break // server reports exhaustion
		}
	}
	return rows, total, nil
}

// ---- table data ------------------------------------------------------------

// TableData is the result of a table scan.
type TableData struct {
	Table           string
	Columns         []string
	Rows            [][]Cell
	TotalRows       int
	TruncatedFields bool
}

// GetTableData scans one table (or, with an empty name, the union of all
// tables' fields) as a dimensions-only hypercube. The row cap is enforced
// client-side.
func (c *Client) GetTableData(ctx context.Context, appHandle int, tableName string, maxRows int) (*TableData, error) {
	if maxRows <= 0 {
		return nil, errf(KindValidation, "max rows must be positive, got %d", maxRows)
	}
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	fields, err := c.cachedFields(ctx, appHandle)
	if err != nil {
		return nil, err
	}

	var cols []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if tableName != "" && f.Table != tableName {
			continue
		}
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		cols = append(cols, f.Name)
	}
	if len(cols) == 0 {
		if tableName != "" {
			return nil, errf(KindValidation, "table %q not found or has no fields", tableName)
		}
		return nil, errf(KindValidation, "app has no fields")
	}
	truncated := false
	if len(cols) > maxTableFields {
		cols = cols[:maxTableFields]
		truncated = true
	}

	id := "table-data-" + orCustom(tableName)
	def := newCubeDef(id, cols, nil, min(c.opts.pageSize(), maxRows))
	rows, total, err := c.fetchCube(ctx, appHandle, def, len(cols), maxRows)
	if err != nil {
		return nil, err
	}
	return &TableData{
		Table:           tableName,
		Columns:         cols,
		Rows:            rows,
		TotalRows:       total,
		TruncatedFields: truncated,
	}, nil
}

func orCustom(name string) string {
	if name == "" {
		return "all"
	}
	return name
}

// ---- field values ----------------------------------------------------------

// FieldValue is one distinct value of a field.
type FieldValue struct {
	Value     string
	Num       *float64
	State     string
	Frequency *int64
}

// FieldValues is the truncated distinct-value listing of a field.
type FieldValues struct {
	Field       string
	Values      []FieldValue
	TotalValues int
}

// GetFieldValues lists a field's distinct values via a transient
// ListObject, optionally with per-value frequency counts.
func (c *Client) GetFieldValues(ctx context.Context, appHandle int, fieldName string, maxValues int, includeFrequency bool) (*FieldValues, error) {
	if maxValues <= 0 {
		return nil, errf(KindValidation, "max values must be positive, got %d", maxValues)
	}
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}

	sortByFreq := 0
	freqMode := ""
	if includeFrequency {
		sortByFreq = 1
		freqMode = "V"
	}
	def := listObjectObjectDef{
		Info: objectInfo{ID: "field-values-" + fieldName, Type: "ListObject"},
		ListObjectDef: listObjectDef{
			StateName: "$",
			Def: dimensionDef{
				FieldDefs:   []string{fieldName},
				FieldLabels: []string{},
				SortCriterias: []sortCriteria{{
					SortByFrequency: sortByFreq,
					SortByNumeric:   1,
					SortByAscii:     1,
				}},
			},
			FrequencyMode:    freqMode,
			InitialDataFetch: []dataFetch{{Height: maxValues, Width: 1}},
		},
	}

	res, err := c.invoke(ctx, "CreateSessionObject", []any{def}, appHandle)
	if err != nil {
		return nil, err
	}
	var created handleReturn
	if err := json.Unmarshal(res, &created); err != nil {
		return nil, wrapErr(KindProtocol, err, "CreateSessionObject: %v", err)
	}
	listHandle := created.Return.Handle
	if err := c.handles.RegisterChild(appHandle, listHandle); err != nil {
		return nil, err
	}
	defer func() {
		if _, derr := c.invoke(ctx, "DestroySessionObject", []any{def.Info.ID}, appHandle); derr != nil {
			slog.Warn("engine: destroy session object failed", "id", def.Info.ID, "err", derr)
		}
		c.handles.Release(listHandle)
	}()

	layoutRes, err := c.invoke(ctx, "GetLayout", nil, listHandle)
	if err != nil {
		return nil, err
	}
	var layout struct {
		Layout struct {
			ListObject *struct {
				Size      cubeSize   `json:"qSize"`
				DataPages []dataPage `json:"qDataPages"`
			} `json:"qListObject"`
		} `json:"qLayout"`
	}
	if err := json.Unmarshal(layoutRes, &layout); err != nil {
		return nil, wrapErr(KindProtocol, err, "GetLayout: %v", err)
	}
	lo := layout.Layout.ListObject
	if lo == nil {
		return nil, errf(KindProtocol, "no list object in layout")
	}

	fv := &FieldValues{Field: fieldName, TotalValues: lo.Size.Cy}
	for _, page := range lo.DataPages {
		for _, row := range page.Matrix {
			if len(fv.Values) == maxValues {
				break
			}
			if len(row) == 0 {
				continue
			}
			cell := row[0]
			fv.Values = append(fv.Values, FieldValue{
				Value:     cell.Text,
				Num:       cell.Num,
				State:     cell.State,
				Frequency: cell.Frequency,
			})
		}
	}
	return fv, nil
}

// ---- field statistics ------------------------------------------------------

// statSpec pairs a statistic key with its expression template; %s is the
// field name. The server-side function names are configurable because they
// depend on the target platform's expression language.
type statSpec struct {
	Key      string
	Template string
}

var defaultStatSpecs = []statSpec{
	{"distinct_count", "Count(DISTINCT [%s])"},
	{"total_count", "Count([%s])"},
	{"non_null_count", "Count({$<[%s]={'*'}>})"},
	{"min", "Min([%s])"},
	{"max", "Max([%s])"},
	{"avg", "Avg([%s])"},
	{"sum", "Sum([%s])"},
	{"median", "Median([%s])"},
	{"mode", "Mode([%s])"},
	{"std_deviation", "Stdev([%s])"},
}

// statSpecs applies configured template overrides onto the defaults.
func (c *Client) statSpecs() []statSpec {
	specs := make([]statSpec, len(defaultStatSpecs))
	copy(specs, defaultStatSpecs)
	for i, s := range specs {
		if tpl, ok := c.opts.Statistics[s.Key]; ok {
			specs[i].Template = tpl
		}
	}
	return specs
}

// FieldStatistics is the flat aggregation record of one field.
type FieldStatistics struct {
	Field string
	Stats map[string]Cell

	// Derived from total_count and non_null_count when both are numeric.
	NullCount       *float64
	NullPercentage  *float64
	Completeness    *float64
}

// GetFieldStatistics computes the aggregation set over one field. Fails
// with FieldNotFound when the field is absent from the data model.
func (c *Client) GetFieldStatistics(ctx context.Context, appHandle int, fieldName string) (*FieldStatistics, error) {
	if err := c.checkOpen(appHandle); err != nil {
		return nil, err
	}
	fields, err := c.cachedFields(ctx, appHandle)
	if err != nil {
		return nil, err
	}
	known := false
	for _, f := range fields {
		if f.Name == fieldName {
			known = true
			break
		}
	}
	if !known {
		return nil, errf(KindFieldNotFound, "field %q not found", fieldName)
	}

	specs := c.statSpecs()
	measures := make([]string, len(specs))
	for i, s := range specs {
		measures[i] = fmt.Sprintf(s.Template, fieldName)
	}
	def := newCubeDef("field-stats-"+fieldName, nil, measures, 1)
	rows, _, err := c.fetchCube(ctx, appHandle, def, len(measures), 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errf(KindProtocol, "statistics hypercube returned no rows")
	}

	stats := &FieldStatistics{Field: fieldName, Stats: make(map[string]Cell, len(specs))}
	for i, cell := range rows[0] {
		if i < len(specs) {
			stats.Stats[specs[i].Key] = cell
		}
	}
	stats.derive()
	return stats, nil
}

func (s *FieldStatistics) derive() {
	total, okT := s.numeric("total_count")
	nonNull, okN := s.numeric("non_null_count")
	if !okT || !okN {
		return
	}
	nulls := total - nonNull
	s.NullCount = &nulls
	if total > 0 {
		np := nulls / total * 100
		cp := nonNull / total * 100
		s.NullPercentage = &np
		s.Completeness = &cp
	}
}

func (s *FieldStatistics) numeric(key string) (float64, bool) {
	cell, ok := s.Stats[key]
	if !ok || cell.Num == nil {
		return 0, false
	}
	return *cell.Num, true
}
