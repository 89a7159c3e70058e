package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pavitrk/retirepipe/internal/api"
	"github.com/pavitrk/retirepipe/internal/retry"
	"github.com/pavitrk/retirepipe/internal/states"
	"github.com/pavitrk/retirepipe/internal/testkit"
)

type testServer struct {
	ts        *httptest.Server
	store     *testkit.MemoryStore
	queue     *testkit.MemoryQueue
	directory *testkit.FakeDirectory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	reg, err := states.NewRegistry(states.DefaultCatalog())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	store := testkit.NewMemoryStore(reg)
	queue := testkit.NewMemoryQueue()
	directory := testkit.NewFakeDirectory()
	directory.AddUser("u1", "alice", "alice@example.com", "Alice Doe")

	srv := api.NewServer(":0", store, queue, directory, "retirements:ready", nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, store: store, queue: queue, directory: directory}
}

func (s *testServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(s.ts.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestRequestRetirement(t *testing.T) {
	s := newTestServer(t)

	resp := s.post(t, "/retirements", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	rec := decode[api.RecordResponse](t, resp)
	if rec.CurrentState != states.StatePending {
		t.Fatalf("state = %s, want %s", rec.CurrentState, states.StatePending)
	}
	if rec.OriginalUsername != "alice" {
		t.Fatalf("original username = %s", rec.OriginalUsername)
	}

	depth, _ := s.queue.Depth(context.Background(), "retirements:ready")
	if depth != 1 {
		t.Fatalf("queue depth = %d, want 1", depth)
	}
}

func TestRequestRetirementConflicts(t *testing.T) {
	s := newTestServer(t)

	resp := s.post(t, "/retirements", map[string]string{"username": "alice"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first request: status = %d", resp.StatusCode)
	}

	resp = s.post(t, "/retirements", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate request: status = %d, want 409", resp.StatusCode)
	}
	apiErr := decode[api.APIError](t, resp)
	if apiErr.Code != "already_in_progress" {
		t.Fatalf("error code = %s, want already_in_progress", apiErr.Code)
	}
}

func TestRequestRetirementValidation(t *testing.T) {
	s := newTestServer(t)

	resp := s.post(t, "/retirements", map[string]string{"username": ""})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty username: status = %d, want 400", resp.StatusCode)
	}

	resp = s.post(t, "/retirements", map[string]string{"username": "nobody"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: status = %d, want 404", resp.StatusCode)
	}
}

func TestRequestRetirementIdentityOutage(t *testing.T) {
	s := newTestServer(t)

	// A failing identity service is not the same as an unknown user.
	s.directory.LookupErr = retry.Retryable(errors.New("identity service timed out"))
	resp := s.post(t, "/retirements", map[string]string{"username": "alice"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("identity outage: status = %d, want 503", resp.StatusCode)
	}
	apiErr := decode[api.APIError](t, resp)
	if apiErr.Code != "identity_unavailable" {
		t.Fatalf("error code = %s, want identity_unavailable", apiErr.Code)
	}

	// Once the service recovers the same request goes through.
	s.directory.LookupErr = nil
	resp = s.post(t, "/retirements", map[string]string{"username": "alice"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("after recovery: status = %d, want 202", resp.StatusCode)
	}
}

func TestGetRetirementByIDAndUser(t *testing.T) {
	s := newTestServer(t)

	created := decode[api.RecordResponse](t, s.post(t, "/retirements", map[string]string{"username": "alice"}))

	resp := s.get(t, "/retirements/"+created.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("by record ID: status = %d", resp.StatusCode)
	}
	got := decode[api.RecordResponse](t, resp)
	if got.ID != created.ID {
		t.Fatalf("got record %s, want %s", got.ID, created.ID)
	}

	// The same route resolves user IDs for status polling.
	resp = s.get(t, "/retirements/u1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("by user ID: status = %d", resp.StatusCode)
	}
	got = decode[api.RecordResponse](t, resp)
	if got.ID != created.ID {
		t.Fatalf("got record %s, want %s", got.ID, created.ID)
	}

	resp = s.get(t, "/retirements/no-such-id")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d, want 404", resp.StatusCode)
	}
}

func TestAbortRetirement(t *testing.T) {
	s := newTestServer(t)

	created := decode[api.RecordResponse](t, s.post(t, "/retirements", map[string]string{"username": "alice"}))

	resp := s.post(t, "/retirements/"+created.ID+"/abort", map[string]string{"reason": "user changed their mind"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("abort: status = %d, want 202", resp.StatusCode)
	}
	aborted := decode[api.RecordResponse](t, resp)
	if aborted.CurrentState != states.StateAborted {
		t.Fatalf("state = %s, want %s", aborted.CurrentState, states.StateAborted)
	}

	// A second abort finds the record already terminal.
	resp = s.post(t, "/retirements/"+created.ID+"/abort", map[string]string{"reason": "again"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second abort: status = %d, want 409", resp.StatusCode)
	}
	apiErr := decode[api.APIError](t, resp)
	if apiErr.Code != "already_terminal" {
		t.Fatalf("error code = %s, want already_terminal", apiErr.Code)
	}
}

func TestAbortRetirementByUserID(t *testing.T) {
	s := newTestServer(t)

	created := decode[api.RecordResponse](t, s.post(t, "/retirements", map[string]string{"username": "alice"}))

	// Abort accepts user identifiers, same as the status route.
	resp := s.post(t, "/retirements/u1/abort", map[string]string{"reason": "support request"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("abort by user ID: status = %d, want 202", resp.StatusCode)
	}
	aborted := decode[api.RecordResponse](t, resp)
	if aborted.ID != created.ID {
		t.Fatalf("aborted record %s, want %s", aborted.ID, created.ID)
	}
	if aborted.CurrentState != states.StateAborted {
		t.Fatalf("state = %s, want %s", aborted.CurrentState, states.StateAborted)
	}

	resp = s.post(t, "/retirements/no-such-user/abort", map[string]string{"reason": "noise"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown identifier: status = %d, want 404", resp.StatusCode)
	}
}

func TestListAndStats(t *testing.T) {
	s := newTestServer(t)

	created := decode[api.RecordResponse](t, s.post(t, "/retirements", map[string]string{"username": "alice"}))

	list := decode[api.ListResponse](t, s.get(t, "/retirements?state=PENDING"))
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("list by state returned %d items", len(list.Items))
	}

	list = decode[api.ListResponse](t, s.get(t, "/retirements?state=COMPLETE"))
	if len(list.Items) != 0 {
		t.Fatalf("list COMPLETE returned %d items, want 0", len(list.Items))
	}

	stats := decode[api.StatsResponse](t, s.get(t, "/stats"))
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestErroredEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created := decode[api.RecordResponse](t, s.post(t, "/retirements", map[string]string{"username": "alice"}))
	if _, err := s.store.Advance(ctx, created.ID, states.StateErrored, "credentials subsystem rejected the user", false); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	list := decode[api.ListResponse](t, s.get(t, "/errored"))
	if len(list.Items) != 1 {
		t.Fatalf("errored list = %d items, want 1", len(list.Items))
	}

	// The detail view carries the response log for remediation.
	detail := decode[api.RecordResponse](t, s.get(t, "/errored/"+created.ID))
	if len(detail.Responses) == 0 {
		t.Fatal("errored detail has no responses")
	}

	resp := s.get(t, "/errored/no-such-id")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown errored id: status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.get(t, "/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status = %d, want 200", resp.StatusCode)
	}
}
