package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/skyd/internal/server"
	"github.com/user/skyd/internal/session"
	"github.com/user/skyd/internal/storage"
	"github.com/user/skyd/internal/types"
)

func setupServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	engine := storage.NewEngine()
	ctx := context.Background()

	err := session.With(ctx, engine, root, "db", "users", func(s *session.Session) error {
		if _, err := s.Table.CreateAction(ctx, "signup"); err != nil {
			return err
		}
		p, err := s.Table.FindOrCreateProperty(ctx, "plan", types.DataTypeString)
		if err != nil {
			return err
		}
		for i := int64(1); i <= 3; i++ {
			ev := types.NewEvent(i*1000, 42, 1)
			ev.Set(p.ID, "pro")
			if err := s.Table.AppendEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	stats := func() server.Stats { return server.Stats{State: "running", Requests: 3} }
	return NewServer(root, engine, stats, nil), root
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestServerStats(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var st server.Stats
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != "running" || st.Requests != 3 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestTableStats(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/api/databases/db/tables/users/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body)
	}
	var st types.TableStats
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Events != 3 || st.Actions != 1 || st.Properties != 1 || st.Bytes == 0 {
		t.Errorf("unexpected table stats %+v", st)
	}
}

func TestTableEvents(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/api/databases/db/tables/users/events?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body)
	}
	var events []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1]["timestamp"] != float64(3000) {
		t.Errorf("expected last event at 3000, got %v", events[1]["timestamp"])
	}
}

func TestActions(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/api/databases/db/tables/users/actions", `{"name":"login"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body)
	}
	w = do(t, srv, http.MethodPost, "/api/databases/db/tables/users/actions", `{"name":"login"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", w.Code)
	}
	w = do(t, srv, http.MethodPost, "/api/databases/db/tables/users/actions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing name, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/databases/db/tables/users/actions", "")
	var actions []*types.Action
	if err := json.NewDecoder(w.Body).Decode(&actions); err != nil {
		t.Fatal(err)
	}
	want := []*types.Action{{ID: 1, Name: "signup"}, {ID: 2, Name: "login"}}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestProperties(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/api/databases/db/tables/users/properties", "")
	var props []*types.Property
	if err := json.NewDecoder(w.Body).Decode(&props); err != nil {
		t.Fatal(err)
	}
	want := []*types.Property{{ID: 1, Name: "plan", DataType: types.DataTypeString}}
	if diff := cmp.Diff(want, props); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
}

func TestMissingTableIsNotCreated(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/api/databases/db/tables/nope/stats", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/api/databases/db/tables/nope/stats", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("table must not be created by a read, got %d", w.Code)
	}
}

func TestInvalidName(t *testing.T) {
	srv, _ := setupServer(t)
	w := do(t, srv, http.MethodGet, "/api/databases/../tables/users/stats", "")
	if w.Code == http.StatusOK {
		t.Error("expected traversal to be rejected")
	}
}

func TestToken(t *testing.T) {
	root := t.TempDir()
	srv := NewServer(root, storage.NewEngine(), func() server.Stats { return server.Stats{} }, nil, WithToken("s3cret"))

	if w := do(t, srv, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must not require a token, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/stats", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}
