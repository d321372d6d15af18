package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// rpcHandler answers one inbound call of the fake engine.
type rpcHandler func(method string, handle int, params json.RawMessage) (any, *RemoteError)

// newFakeEngine runs a WebSocket JSON-RPC server that dispatches every
// frame to fn.
func newFakeEngine(t *testing.T, fn rpcHandler) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     int64           `json:"id"`
				Handle int             `json:"handle"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			result, rpcErr := fn(req.Method, req.Handle, req.Params)
			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialFake(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// openDocResult is the canonical OpenDoc answer handing out app handle 1.
func openDocResult() any {
	return map[string]any{"qReturn": map[string]any{"qHandle": 1, "qGenericId": "app-1"}}
}

// tablesResult builds a GetTablesAndKeys answer with one table.
func tablesResult(table string, fields ...map[string]any) any {
	return map[string]any{"qtr": []any{
		map[string]any{"qName": table, "qFields": fields},
	}}
}

func fieldDef(name string, tags ...string) map[string]any {
	return map[string]any{
		"qName": name, "qTags": tags,
		"qnTotalDistinctValues": 3, "qnRows": 9,
	}
}

// ─── OpenApp / CloseApp ────────────────────────────────────────────────────

func TestOpenApp_RegistersHandle(t *testing.T) {
	var openParams json.RawMessage
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		if method == "OpenDoc" && handle == GlobalHandle {
			openParams = params
			return openDocResult(), nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})

	h, err := c.OpenApp(context.Background(), "sales.qvf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 1 {
		t.Fatalf("expected handle 1, got %d", h)
	}
	if err := c.Handles().Resolve(h); err != nil {
		t.Errorf("handle not registered: %v", err)
	}

	var args []any
	if err := json.Unmarshal(openParams, &args); err != nil {
		t.Fatal(err)
	}
	want := []any{"sales.qvf", "", "", "", true}
	if len(args) != len(want) {
		t.Fatalf("expected %d OpenDoc args, got %v", len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("OpenDoc arg %d: got %v, want %v", i, args[i], want[i])
		}
	}
}

func TestOpenApp_NotFound(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		return nil, &RemoteError{Code: 1002, Message: "App not found"}
	})
	c := dialFake(t, srv, Options{})

	if _, err := c.OpenApp(context.Background(), "missing"); !IsKind(err, KindAppNotFound) {
		t.Fatalf("expected app-not-found, got %v", err)
	}
}

func TestOpenApp_AccessDenied(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		return nil, &RemoteError{Code: 403, Message: "Access denied"}
	})
	c := dialFake(t, srv, Options{})

	if _, err := c.OpenApp(context.Background(), "locked"); !IsKind(err, KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestCloseApp_InvalidatesHandle(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "CloseDoc":
			return map[string]any{"qReturn": map[string]any{"qSuccess": true}}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})

	h, err := c.OpenApp(context.Background(), "sales.qvf")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.CloseApp(context.Background(), h); err != nil {
		t.Fatalf("close: %v", err)
	}
	// No network round trip may happen for a stale handle.
	if _, err := c.GetScript(context.Background(), h); !IsKind(err, KindInvalidHandle) {
		t.Fatalf("expected invalid handle, got %v", err)
	}
}

// ─── GetScript / GetFields ─────────────────────────────────────────────────

func TestGetScript(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "GetScript":
			return map[string]any{"qScript": "LOAD * FROM a;\nSTORE x;"}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	s, err := c.GetScript(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if s.Text != "LOAD * FROM a;\nSTORE x;" {
		t.Errorf("unexpected script: %q", s.Text)
	}
	if s.Lines != 2 {
		t.Errorf("expected 2 lines, got %d", s.Lines)
	}
}

func TestGetFields_InfersTypes(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "GetTablesAndKeys":
			return tablesResult("Orders",
				fieldDef("Amount", "$numeric"),
				fieldDef("Region", "$text", "$ascii"),
				fieldDef("OrderDate", "$numeric", "$date"),
			), nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	fields, err := c.GetFields(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	types := map[string]FieldType{}
	for _, f := range fields {
		types[f.Name] = f.Type
		if f.Table != "Orders" {
			t.Errorf("field %s: table %q", f.Name, f.Table)
		}
	}
	if types["Amount"] != FieldNumeric || types["Region"] != FieldText || types["OrderDate"] != FieldTimestamp {
		t.Errorf("unexpected type inference: %v", types)
	}
}

// ─── CreateHypercube ───────────────────────────────────────────────────────

// cubeEngine serves a hypercube whose server-side page size is capped at
// serverPage rows regardless of what the client asks for.
type cubeEngine struct {
	matrix     [][]map[string]any
	serverPage int
	destroyed  bool
	cubeHandle int
}

func newCubeEngine(totalRows, width, serverPage int) *cubeEngine {
	e := &cubeEngine{serverPage: serverPage, cubeHandle: 2}
	for i := 0; i < totalRows; i++ {
		row := make([]map[string]any, width)
		for j := 0; j < width; j++ {
			row[j] = map[string]any{
				"qText": fmt.Sprintf("r%dc%d", i, j), "qNum": i, "qIsNumeric": true,
			}
		}
		e.matrix = append(e.matrix, row)
	}
	return e
}

func (e *cubeEngine) page(top, height int) []any {
	if height > e.serverPage {
		height = e.serverPage
	}
	end := top + height
	if end > len(e.matrix) {
		end = len(e.matrix)
	}
	var rows []any
	for _, r := range e.matrix[top:min(end, len(e.matrix))] {
		rows = append(rows, r)
	}
	return []any{map[string]any{"qMatrix": rows}}
}

func (e *cubeEngine) handle(method string, handle int, params json.RawMessage) (any, *RemoteError) {
	switch method {
	case "OpenDoc":
		return openDocResult(), nil
	case "GetTablesAndKeys":
		return tablesResult("Orders", fieldDef("Region", "$text"), fieldDef("Amount", "$numeric")), nil
	case "CreateSessionObject":
		var defs []struct {
			HyperCubeDef *struct {
				InitialDataFetch []dataFetch `json:"qInitialDataFetch"`
			} `json:"qHyperCubeDef"`
		}
		if err := json.Unmarshal(params, &defs); err != nil || len(defs) == 0 {
			return nil, &RemoteError{Code: -1, Message: "bad params"}
		}
		return map[string]any{"qReturn": map[string]any{"qHandle": e.cubeHandle}}, nil
	case "GetLayout":
		width := 0
		if len(e.matrix) > 0 {
			width = len(e.matrix[0])
		}
		return map[string]any{"qLayout": map[string]any{"qHyperCube": map[string]any{
			"qSize":      map[string]any{"qcx": width, "qcy": len(e.matrix)},
			"qDataPages": e.page(0, e.serverPage),
		}}}, nil
	case "GetHyperCubeData":
		var req []struct {
			Pages []dataFetch `json:"qPages"`
		}
		if err := json.Unmarshal(params, &req); err != nil || len(req) == 0 || len(req[0].Pages) == 0 {
			return nil, &RemoteError{Code: -1, Message: "bad params"}
		}
		p := req[0].Pages[0]
		return map[string]any{"qDataPages": e.page(p.Top, p.Height)}, nil
	case "DestroySessionObject":
		e.destroyed = true
		return map[string]any{"qSuccess": true}, nil
	case "CloseDoc":
		return map[string]any{"qReturn": map[string]any{"qSuccess": true}}, nil
	}
	return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
}

func TestCreateHypercube_PaginatesPastShortPages(t *testing.T) {
	// Six rows total, server hands out at most two per call, caller wants
	// five. Short pages must not end the scan early.
	eng := newCubeEngine(6, 2, 2)
	srv := newFakeEngine(t, eng.handle)
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	res, err := c.CreateHypercube(context.Background(), h, HypercubeRequest{
		Dimensions: []string{"Region"},
		Measures:   []string{"Sum(Amount)"},
		MaxRows:    5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 5 {
		t.Fatalf("expected exactly 5 rows, got %d", len(res.Rows))
	}
	if res.TotalRows != 6 {
		t.Errorf("expected total 6, got %d", res.TotalRows)
	}
	for i, row := range res.Rows {
		if row[0].Text != fmt.Sprintf("r%dc0", i) {
			t.Errorf("row %d out of order: %q", i, row[0].Text)
		}
	}
	if res.Columns[0] != "Region" || res.Columns[1] != "Sum(Amount)" {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
	if !eng.destroyed {
		t.Error("session object not destroyed")
	}
}

func TestCreateHypercube_Validation(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		return openDocResult(), nil
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	_, err := c.CreateHypercube(context.Background(), h, HypercubeRequest{MaxRows: 10})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = c.CreateHypercube(context.Background(), h, HypercubeRequest{
		Dimensions: []string{"Region"}, MaxRows: 0,
	})
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error for max rows, got %v", err)
	}
}

// ─── GetTableData ──────────────────────────────────────────────────────────

func TestGetTableData_NamedTable(t *testing.T) {
	eng := newCubeEngine(3, 2, 10)
	srv := newFakeEngine(t, eng.handle)
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	td, err := c.GetTableData(context.Background(), h, "Orders", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(td.Columns) != 2 || td.Columns[0] != "Region" || td.Columns[1] != "Amount" {
		t.Errorf("unexpected columns: %v", td.Columns)
	}
	if len(td.Rows) != 3 || td.TotalRows != 3 {
		t.Errorf("expected 3 rows, got %d (total %d)", len(td.Rows), td.TotalRows)
	}
}

func TestGetTableData_UnknownTable(t *testing.T) {
	eng := newCubeEngine(3, 2, 10)
	srv := newFakeEngine(t, eng.handle)
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	if _, err := c.GetTableData(context.Background(), h, "Nope", 10); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// ─── GetFieldValues ────────────────────────────────────────────────────────

func TestGetFieldValues_TruncatesAndReportsTotal(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "CreateSessionObject":
			return map[string]any{"qReturn": map[string]any{"qHandle": 3}}, nil
		case "GetLayout":
			return map[string]any{"qLayout": map[string]any{"qListObject": map[string]any{
				"qSize": map[string]any{"qcx": 1, "qcy": 4},
				"qDataPages": []any{map[string]any{"qMatrix": []any{
					[]any{map[string]any{"qText": "CA", "qNum": "NaN", "qState": "O", "qFrequency": "12"}},
					[]any{map[string]any{"qText": "NY", "qNum": "NaN", "qState": "O", "qFrequency": "7"}},
				}}},
			}}}, nil
		case "DestroySessionObject":
			return map[string]any{"qSuccess": true}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	fv, err := c.GetFieldValues(context.Background(), h, "State", 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if fv.TotalValues != 4 {
		t.Errorf("expected total 4, got %d", fv.TotalValues)
	}
	if len(fv.Values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(fv.Values))
	}
	if fv.Values[0].Value != "CA" || fv.Values[0].Frequency == nil || *fv.Values[0].Frequency != 12 {
		t.Errorf("unexpected first value: %+v", fv.Values[0])
	}
}

// ─── GetFieldStatistics ────────────────────────────────────────────────────

func TestGetFieldStatistics(t *testing.T) {
	// Values 10, 20, 30: the stat cube comes back as a single row ordered
	// like the expression list.
	statRow := []any{}
	for _, v := range []float64{3, 3, 3, 10, 30, 20, 60, 20, 10, 10} {
		statRow = append(statRow, map[string]any{
			"qText": fmt.Sprintf("%g", v), "qNum": v, "qIsNumeric": true,
		})
	}
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "GetTablesAndKeys":
			return tablesResult("Orders", fieldDef("Amount", "$numeric")), nil
		case "CreateSessionObject":
			return map[string]any{"qReturn": map[string]any{"qHandle": 4}}, nil
		case "GetLayout":
			return map[string]any{"qLayout": map[string]any{"qHyperCube": map[string]any{
				"qSize":      map[string]any{"qcx": 10, "qcy": 1},
				"qDataPages": []any{map[string]any{"qMatrix": []any{statRow}}},
			}}}, nil
		case "DestroySessionObject":
			return map[string]any{"qSuccess": true}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	stats, err := c.GetFieldStatistics(context.Background(), h, "Amount")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"distinct_count": 3, "min": 10, "max": 30, "avg": 20, "median": 20, "sum": 60,
	}
	for key, v := range want {
		cell, ok := stats.Stats[key]
		if !ok || cell.Num == nil || *cell.Num != v {
			t.Errorf("stat %s: got %+v, want %g", key, cell, v)
		}
	}
	if stats.NullCount == nil || *stats.NullCount != 0 {
		t.Errorf("expected null count 0, got %v", stats.NullCount)
	}
	if stats.Completeness == nil || *stats.Completeness != 100 {
		t.Errorf("expected completeness 100, got %v", stats.Completeness)
	}
}

func TestGetFieldStatistics_FieldNotFound(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "GetTablesAndKeys":
			return tablesResult("Orders", fieldDef("Amount", "$numeric")), nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	if _, err := c.GetFieldStatistics(context.Background(), h, "Ghost"); !IsKind(err, KindFieldNotFound) {
		t.Fatalf("expected field-not-found, got %v", err)
	}
}

// ─── GetSheets / GetDataModel / Evaluate ───────────────────────────────────

func TestGetSheets(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "CreateSessionObject":
			return map[string]any{"qReturn": map[string]any{"qHandle": 5}}, nil
		case "GetLayout":
			return map[string]any{"qLayout": map[string]any{"qAppObjectList": map[string]any{
				"qItems": []any{
					map[string]any{
						"qInfo": map[string]any{"qId": "sheet-1"},
						"qMeta": map[string]any{"title": "Overview", "description": "KPIs"},
					},
				},
			}}}, nil
		case "DestroySessionObject":
			return map[string]any{"qSuccess": true}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	sheets, err := c.GetSheets(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 1 || sheets[0].ID != "sheet-1" || sheets[0].Title != "Overview" {
		t.Errorf("unexpected sheets: %+v", sheets)
	}
}

func TestGetDataModel_Categorizes(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "GetAllInfos":
			return map[string]any{"qInfos": []any{
				map[string]any{"qId": "s1", "qType": "sheet"},
				map[string]any{"qId": "v1", "qType": "barchart"},
				map[string]any{"qId": "m1", "qType": "measure"},
				map[string]any{"qId": "d1", "qType": "dimension"},
				map[string]any{"qId": "x1", "qType": "bookmark"},
			}}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	dm, err := c.GetDataModel(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if dm.TotalObjects != 5 {
		t.Errorf("expected 5 objects, got %d", dm.TotalObjects)
	}
	if len(dm.Sheets) != 1 || len(dm.Visualizations) != 1 || len(dm.Measures) != 1 || len(dm.Dimensions) != 1 {
		t.Errorf("unexpected categorization: %+v", dm)
	}
}

func TestCreateDataExport_FlagsTruncatedFieldList(t *testing.T) {
	row := []any{}
	for i := 0; i < maxExportFields; i++ {
		row = append(row, map[string]any{"qText": fmt.Sprintf("v%d", i)})
	}
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "OpenDoc":
			return openDocResult(), nil
		case "CreateSessionObject":
			return map[string]any{"qReturn": map[string]any{"qHandle": 2}}, nil
		case "GetLayout":
			return map[string]any{"qLayout": map[string]any{"qHyperCube": map[string]any{
				"qSize":      map[string]any{"qcx": maxExportFields, "qcy": 1},
				"qDataPages": []any{map[string]any{"qMatrix": []any{row}}},
			}}}, nil
		case "DestroySessionObject":
			return map[string]any{"qSuccess": true}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})
	h, _ := c.OpenApp(context.Background(), "a")

	fields := make([]string, maxExportFields+1)
	for i := range fields {
		fields[i] = fmt.Sprintf("F%d", i)
	}
	exp, err := c.CreateDataExport(context.Background(), h, ExportRequest{
		Fields: fields, Format: "simple", MaxRows: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !exp.TruncatedFields {
		t.Error("expected the truncation flag to be set")
	}
	if len(exp.Fields) != maxExportFields {
		t.Errorf("expected %d exported fields, got %d", maxExportFields, len(exp.Fields))
	}
}

func TestDocList(t *testing.T) {
	srv := newFakeEngine(t, func(method string, handle int, params json.RawMessage) (any, *RemoteError) {
		if method == "GetDocList" && handle == GlobalHandle {
			return map[string]any{"qDocList": []any{
				map[string]any{"qDocId": "abc", "qDocName": "Sales", "qTitle": "Sales"},
			}}, nil
		}
		return nil, &RemoteError{Code: -1, Message: "unexpected " + method}
	})
	c := dialFake(t, srv, Options{})

	docs, err := c.DocList(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "abc" || docs[0].Name != "Sales" {
		t.Errorf("unexpected docs: %+v", docs)
	}
}
