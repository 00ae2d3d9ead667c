package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/perfwatch/internal/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Options{BaseURL: server.URL + "/", Token: "secret-token", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"code":0,"msg":"ok","data":`+data+`}`)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "  "}); err == nil {
		t.Error("Expected error for empty base URL")
	}
}

func TestClient_ExecutionSendsBearerToken(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeEnvelope(w, `{"id":"42","name":"checkout load","status":"RUNNING","reportInterval":"5s",
			"pipelines":[{"name":"checkout","children":["pay"]}]}`)
	}))

	detail, err := c.Execution(context.Background(), "42")
	if err != nil {
		t.Fatalf("Execution failed: %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer token, got %q", gotAuth)
	}
	if gotPath != "/exec/42" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if detail.Status != types.StatusRunning || detail.ReportInterval != "5s" {
		t.Errorf("Unexpected detail: %+v", detail)
	}
	if len(detail.Pipelines) != 1 || detail.Pipelines[0].Children[0] != "pay" {
		t.Errorf("Unexpected pipelines: %+v", detail.Pipelines)
	}
}

func TestClient_SamplesSendsCursorFilter(t *testing.T) {
	var req pageRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/exec/7/sample/throughput" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		writeEnvelope(w, `{"list":[{"timestamp":"t1","name":"Total","cvsValue":"1,2"}],"total":1}`)
	}))

	page, err := c.Samples(context.Background(), "7", types.PageQuery{Cursor: "2024-01-01 10:00:00", PageNo: 2, PageSize: 100})
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}

	if req.PageNo != 2 || req.PageSize != 100 {
		t.Errorf("Unexpected paging: %+v", req)
	}
	if len(req.Filters) != 1 || req.Filters[0].Operator != FilterGreaterThanEqual || req.Filters[0].Value != "2024-01-01 10:00:00" {
		t.Errorf("Unexpected filters: %+v", req.Filters)
	}
	if page.Total != 1 || page.List[0].CvsValue != "1,2" {
		t.Errorf("Unexpected page: %+v", page)
	}
}

func TestClient_SamplesWithoutCursor(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, `{"list":[],"total":0}`)
	}))

	if _, err := c.Samples(context.Background(), "7", types.PageQuery{PageSize: 10}); err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if _, ok := body["filters"]; ok {
		t.Error("Expected no filters without a cursor")
	}
	if body["pageNo"] != float64(1) {
		t.Errorf("Expected page 1 default, got %v", body["pageNo"])
	}
}

func TestClient_ErrorCountersKeepOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `{"Total":{"errorNum":7,"timeout":5,"refused":2},"login":{"refused":2,"errorNum":2},"search":{"errorNum":5,"timeout":5}}`)
	}))

	counters, err := c.ErrorCounters(context.Background(), "1")
	if err != nil {
		t.Fatalf("ErrorCounters failed: %v", err)
	}

	if len(counters) != 3 {
		t.Fatalf("Expected 3 counters, got %d", len(counters))
	}
	names := []string{counters[0].Name, counters[1].Name, counters[2].Name}
	if names[0] != "Total" || names[1] != "login" || names[2] != "search" {
		t.Errorf("Expected document order, got %v", names)
	}
	total := counters[0]
	if total.ErrorNum != 7 || len(total.Kinds) != 2 || total.Kinds[0].Name != "timeout" || total.Kinds[1].ErrorNum != 2 {
		t.Errorf("Unexpected Total counter: %+v", total)
	}
	if counters[1].ErrorNum != 2 || counters[1].Kinds[0].Name != "refused" {
		t.Errorf("Unexpected login counter: %+v", counters[1])
	}
}

func TestClient_StatusCodes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `{"checkout":{"2xx":10,"5xx":1},"Total":{"2xx":10,"5xx":1,"Exception":3}}`)
	}))

	counters, err := c.StatusCodes(context.Background(), "1")
	if err != nil {
		t.Fatalf("StatusCodes failed: %v", err)
	}
	if len(counters) != 2 || counters[0].Name != "checkout" || counters[1].Exception != 3 {
		t.Errorf("Unexpected counters: %+v", counters)
	}
	if counters[0].Code2xx != 10 || counters[0].Code5xx != 1 {
		t.Errorf("Unexpected checkout codes: %+v", counters[0].StatusCodes)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   int64
		notFound   bool
	}{
		{"envelope error", http.StatusOK, `{"code":5001,"msg":"execution missing","data":null}`, http.StatusOK, 5001, false},
		{"http error", http.StatusNotFound, `{"code":404,"msg":"not found"}`, http.StatusNotFound, 404, true},
		{"plain text error", http.StatusBadGateway, `upstream down`, http.StatusBadGateway, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := c.Execution(context.Background(), "1")
			apiErr, ok := err.(*APIError)
			if !ok {
				t.Fatalf("Expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.wantStatus || apiErr.Code != tt.wantCode {
				t.Errorf("Unexpected error: %+v", apiErr)
			}
			if IsNotFound(err) != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", IsNotFound(err), tt.notFound)
			}
		})
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,`)
	}))

	if _, err := c.LatestSummary(context.Background(), "1"); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestClient_BareResponseWithoutEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"timestamp":"t1","name":"Total","cvsValue":"0,1,0,10"}]`)
	}))

	rows, err := c.LatestSummary(context.Background(), "1")
	if err != nil {
		t.Fatalf("LatestSummary failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Total" {
		t.Errorf("Unexpected rows: %+v", rows)
	}
}

func TestClient_CachedExecution(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, `{"id":"9","status":"COMPLETED"}`)
	}))
	ctx := context.Background()

	first, err := c.CachedExecution(ctx, "9")
	if err != nil {
		t.Fatalf("CachedExecution failed: %v", err)
	}
	first.Name = "mutated"

	second, err := c.CachedExecution(ctx, "9")
	if err != nil {
		t.Fatalf("CachedExecution failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected one API call, got %d", calls.Load())
	}
	if second.Name == "mutated" {
		t.Error("Cached detail must be copied")
	}

	// Execution always goes to the API
	if _, err := c.Execution(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected Execution to bypass cache, got %d calls", calls.Load())
	}
}

func TestDetailCache_Bounded(t *testing.T) {
	c := newDetailCache(time.Minute, 2)

	if !c.put("a", &types.ExecutionDetail{ID: "a"}) || !c.put("b", &types.ExecutionDetail{ID: "b"}) {
		t.Fatal("Expected first two entries to be cached")
	}
	if c.put("c", &types.ExecutionDetail{ID: "c"}) {
		t.Error("Expected full cache to skip new entry")
	}
	if !c.put("a", &types.ExecutionDetail{ID: "a", Name: "updated"}) {
		t.Error("Expected existing entry to be refreshed when full")
	}
	if c.count() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.count())
	}
	if d, ok := c.get("a"); !ok || d.Name != "updated" {
		t.Errorf("Expected refreshed entry, got %+v", d)
	}
}

func TestDetailCache_EvictsExpiredWhenFull(t *testing.T) {
	c := newDetailCache(10*time.Millisecond, 1)
	c.put("a", &types.ExecutionDetail{ID: "a"})

	time.Sleep(20 * time.Millisecond)

	if !c.put("b", &types.ExecutionDetail{ID: "b"}) {
		t.Error("Expected expired entry to make room")
	}
	if _, ok := c.get("a"); ok {
		t.Error("Expected expired entry to be gone")
	}
}
