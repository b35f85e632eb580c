package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eventactor/runtime/actor"
	"eventactor/runtime/internal/logging"
	"eventactor/runtime/journal/memory"
)

func newTestHost(t *testing.T) (*Host, context.CancelFunc) {
	t.Helper()
	backend := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	host := NewHost(ctx, backend, backend, actor.Config{Logger: logging.NewTestLogger()}, logging.NewTestLogger())
	return host, cancel
}

func decodeCounterResponse(t *testing.T, rr *httptest.ResponseRecorder) counterResponse {
	t.Helper()
	var resp counterResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestHostIncrementThenGetRoundTrip(t *testing.T) {
	//1.- POST /increment must start the counter lazily and return the value
	// after the command has been applied, not a stale pre-command read.
	host, cancel := newTestHost(t)
	defer cancel()

	router := routeCounterRequests(host)

	req := httptest.NewRequest(http.MethodPost, "/v1/counters/widget/increment", strings.NewReader(`{"by":4}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("increment status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if resp := decodeCounterResponse(t, rr); resp.Value != 4 {
		t.Fatalf("value after increment = %d, want 4", resp.Value)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/counters/widget", nil)
	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, getReq)
	if resp := decodeCounterResponse(t, getRR); resp.Value != 4 {
		t.Fatalf("value on get = %d, want 4", resp.Value)
	}
}

func TestHostDecrementUsesDefaultByOne(t *testing.T) {
	//1.- A request body omitting "by" (or with by<=0) defaults to 1, per
	// CounterHandler.ReceiveCommand.
	host, cancel := newTestHost(t)
	defer cancel()

	router := routeCounterRequests(host)
	req := httptest.NewRequest(http.MethodPost, "/v1/counters/gadget/decrement", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if resp := decodeCounterResponse(t, rr); resp.Value != -1 {
		t.Fatalf("value = %d, want -1", resp.Value)
	}
}

func TestHostHealthzReportsCounterCount(t *testing.T) {
	//1.- Touching two distinct counter ids must be reflected in /healthz's
	// count, independent of their values.
	host, cancel := newTestHost(t)
	defer cancel()

	router := routeCounterRequests(host)
	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/counters/"+id+"/increment", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	rr := httptest.NewRecorder()
	healthzHandler(host)(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp struct {
		Counters int `json:"counters"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if resp.Counters != 2 {
		t.Fatalf("counters = %d, want 2", resp.Counters)
	}
}
