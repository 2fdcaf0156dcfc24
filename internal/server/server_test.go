package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"clearline/internal/config"
	"clearline/internal/db"
	"clearline/internal/engine"
	"clearline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("clearline"))
	ctx := context.Background()
	if _, err := e.CreateUser(ctx, "system", "admin-1", "Admin", "ADMIN"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := e.CreateUser(ctx, "system", "clerk-1", "Clerk", "CLERK"); err != nil {
		t.Fatalf("seed clerk: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

var adminHeaders = map[string]string{"X-Actor-Id": "admin-1"}

func TestProjectCascadeOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"customer_name": "Acme Trading",
		"systems":       []string{"IMPORT_SEA_FCL"},
		"start_date":    "2026-03-01T00:00:00Z",
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var created CreateProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Cascade.StagesCreated != 11 {
		t.Fatalf("stages created = %d, want 11", created.Cascade.StagesCreated)
	}
	if created.Cascade.TasksCreated != 12 {
		t.Fatalf("tasks created = %d, want 12", created.Cascade.TasksCreated)
	}
	if created.Cascade.Shipment == nil || created.Cascade.Shipment.TrackingSlug == "" {
		t.Fatal("missing shipment tracking slug")
	}

	// Public tracking page needs no credentials.
	trackRes, trackBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tracking/"+created.Cascade.Shipment.TrackingSlug, nil, nil)
	if trackRes.StatusCode != http.StatusOK {
		t.Fatalf("tracking status %d: %s", trackRes.StatusCode, string(trackBody))
	}
	var tracking TrackingResponse
	if err := json.Unmarshal(trackBody, &tracking); err != nil {
		t.Fatalf("unmarshal tracking: %v", err)
	}
	if len(tracking.Stages) != 11 {
		t.Fatalf("tracking shows %d stages, want 11", len(tracking.Stages))
	}
	if tracking.TrackingNumber != created.Cascade.Shipment.TrackingNumber {
		t.Fatalf("tracking number mismatch: %s vs %s", tracking.TrackingNumber, created.Cascade.Shipment.TrackingNumber)
	}

	statusRes, statusBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+created.Project.ID+"/status", nil, adminHeaders)
	if statusRes.StatusCode != http.StatusOK {
		t.Fatalf("project status %d: %s", statusRes.StatusCode, string(statusBody))
	}
	var status ProjectStatusResponse
	if err := json.Unmarshal(statusBody, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.TaskCounts["PENDING"] != 12 {
		t.Fatalf("pending count = %d, want 12", status.TaskCounts["PENDING"])
	}
}

func TestSyncEndpointIsIdempotent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"customer_name": "Acme Trading",
		"activities": []map[string]any{
			{"shipmentType": "IMPORT_SEA_FCL", "stage": "Documentation", "substage": "Docs", "task": "Collect BL"},
		},
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var created CreateProjectResponse
	_ = json.Unmarshal(data, &created)

	for i := 0; i < 2; i++ {
		syncRes, syncBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.Project.ID+"/tasks/sync", map[string]any{}, adminHeaders)
		if syncRes.StatusCode != http.StatusOK {
			t.Fatalf("sync %d: %d %s", i, syncRes.StatusCode, string(syncBody))
		}
		var sync engine.SyncResult
		if err := json.Unmarshal(syncBody, &sync); err != nil {
			t.Fatalf("unmarshal sync: %v", err)
		}
		if sync.TasksDeleted != 1 || sync.TasksCreated != 1 {
			t.Fatalf("sync %d deleted=%d created=%d, want 1/1", i, sync.TasksDeleted, sync.TasksCreated)
		}
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}

	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health must stay open, got %d", healthRes.StatusCode)
	}
}

func TestPermissionDenied(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"customer_name": "Acme Trading",
		"skip_cascade":  true,
	}, adminHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var created CreateProjectResponse
	_ = json.Unmarshal(data, &created)

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v0/projects/"+created.Project.ID, nil, map[string]string{"X-Actor-Id": "clerk-1"})
	if delRes.StatusCode != http.StatusForbidden {
		t.Fatalf("clerk delete expected 403, got %d %s", delRes.StatusCode, string(delBody))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, raw, err := srv.Engine.CreateAPIKey(context.Background(), "system", "admin-1", "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": raw})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me MeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "admin-1" || me.Source != "api_key" {
		t.Fatalf("me = %+v", me)
	}

	badRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "cl_bogus"})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus key expected 401, got %d", badRes.StatusCode)
	}
}
