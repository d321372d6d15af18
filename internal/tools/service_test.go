package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/sensebridge/sensebridge/internal/config"
	"github.com/sensebridge/sensebridge/internal/engine"
	"github.com/sensebridge/sensebridge/internal/repository"
)

func newTestService(t *testing.T, repoHandler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(repoHandler)
	t.Cleanup(srv.Close)
	repo, err := repository.New(repository.Options{URL: srv.URL})
	if err != nil {
		t.Fatalf("repository client: %v", err)
	}
	cfg := config.DefaultConfig()
	return NewService(&cfg, repo)
}

func TestGetApps_CachesRepositoryReads(t *testing.T) {
	var hits atomic.Int64
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "a1", "name": "Sales", "stream": map[string]any{"id": "s1", "name": "Finance"}},
		})
	})

	for i := 0; i < 3; i++ {
		_, out, err := s.getApps(context.Background(), nil, getAppsIn{})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if out.Total != 1 || out.Apps[0].Name != "Sales" || out.Apps[0].Stream != "Finance" {
			t.Fatalf("unexpected output: %+v", out)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 repository hit, got %d", hits.Load())
	}

	// A different filter is a different cache entry.
	if _, _, err := s.getApps(context.Background(), nil, getAppsIn{Filter: "published eq true"}); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 repository hits after filtered call, got %d", hits.Load())
	}
}

func TestGetAppMetadata_Caches(t *testing.T) {
	var hits atomic.Int64
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/qrs/app/a1/data/metadata" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"tables":[{"name":"Sales"}]}`))
	})

	for i := 0; i < 3; i++ {
		_, out, err := s.getAppMetadata(context.Background(), nil, appIDIn{AppID: "a1"})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if out.AppID != "a1" || !strings.Contains(string(out.Metadata), "Sales") {
			t.Fatalf("unexpected output: %+v", out)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 repository hit, got %d", hits.Load())
	}
}

func TestGetAppDetails(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/qrs/app/a1") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "a1", "name": "Sales", "fileSize": 1024, "published": true,
		})
	})

	_, out, err := s.getAppDetails(context.Background(), nil, appIDIn{AppID: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.App.ID != "a1" || out.FileSize != 1024 || !out.App.Published {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestStartTask(t *testing.T) {
	var gotPath string
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})

	_, out, err := s.startTask(context.Background(), nil, startTaskIn{TaskID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Started || gotPath != "/qrs/task/t1/start" {
		t.Errorf("unexpected call: %+v path %s", out, gotPath)
	}
}

func TestMaxRows_DefaultsToConfig(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	s.cfg.Engine.MaxRows = 250

	if got := s.maxRows(0); got != 250 {
		t.Errorf("expected configured default 250, got %d", got)
	}
	if got := s.maxRows(10); got != 10 {
		t.Errorf("expected explicit 10, got %d", got)
	}
}

// fakeEngineURL runs a minimal WebSocket engine for end-to-end tool tests.
func fakeEngineURL(t *testing.T) string {
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
				ID     int64  `json:"id"`
				Method string `json:"method"`
			}
			if err := json.Unmarshal(raw, &req); err != nil {
				continue
			}
			var result any
			switch req.Method {
			case "OpenDoc":
				result = map[string]any{"qReturn": map[string]any{"qHandle": 1}}
			case "GetScript":
				result = map[string]any{"qScript": "LOAD 1 AS x AUTOGENERATE 1;"}
			case "CloseDoc":
				result = map[string]any{"qReturn": map[string]any{"qSuccess": true}}
			default:
				result = map[string]any{}
			}
			if err := conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGetScript_OpensAndClosesSession(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	s.engineOpts = engine.Options{URL: fakeEngineURL(t)}

	_, out, err := s.getScript(context.Background(), nil, appIDIn{AppID: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Script != "LOAD 1 AS x AUTOGENERATE 1;" || out.Lines != 1 {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestNewServer_Builds(t *testing.T) {
	s := newTestService(t, func(w http.ResponseWriter, r *http.Request) {})
	if srv := NewServer(s); srv == nil {
		t.Fatal("expected a server")
	}
}
