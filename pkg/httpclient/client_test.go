package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxsim/helio/pkg/auth"
	"github.com/luxsim/helio/pkg/errdefs"
)

func newTestClient(opts ...Option) *Client {
	base := []Option{
		WithService("model"),
		WithMaxRetries(3),
		WithBaseDelay(time.Millisecond),
	}
	return New(append(base, opts...)...)
}

func TestNewDefaults(t *testing.T) {
	c := New()
	if c.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", c.maxRetries)
	}
	if c.baseDelay != 300*time.Millisecond {
		t.Errorf("baseDelay = %v, want 300ms", c.baseDelay)
	}
	if c.httpClient.Timeout != 300*time.Second {
		t.Errorf("timeout = %v, want 300s", c.httpClient.Timeout)
	}
}

func TestPostJSONSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","horizon":12.5}`))
	}))
	defer server.Close()

	var out struct {
		Status  string  `json:"status"`
		Horizon float64 `json:"horizon"`
	}
	c := newTestClient()
	err := c.PostJSON(context.Background(), server.URL+"/obstruction", map[string]interface{}{"x": 1.0}, &out)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Horizon != 12.5 {
		t.Errorf("horizon = %v, want 12.5", out.Horizon)
	}
	if gotBody["x"] != 1.0 {
		t.Errorf("request body = %v", gotBody)
	}
}

func TestPostJSONRetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		// The retried request must carry the body again.
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["x"] != 1.0 {
			t.Errorf("retried body lost: %v (%v)", body, err)
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	c := newTestClient()
	if err := c.PostJSON(context.Background(), server.URL, map[string]interface{}{"x": 1.0}, nil); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPostJSONRetryBudgetExhausted(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient()
	err := c.PostJSON(context.Background(), server.URL+"/predict", nil, nil)
	if !errdefs.IsKind(err, errdefs.KindResponse) {
		t.Fatalf("expected response error, got %v", err)
	}
	e := errdefs.AsError(err)
	if e.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", e.StatusCode)
	}
	if e.Service != "model" || e.Endpoint != "/predict" {
		t.Errorf("annotation = %s %s, want model /predict", e.Service, e.Endpoint)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestPostJSONNeverRetries4xx(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := newTestClient()
	err := c.PostJSON(context.Background(), server.URL, nil, nil)
	e := errdefs.AsError(err)
	if e.Kind != errdefs.KindResponse || e.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected response error with 422, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestPostJSONDownstream403(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient()
	err := c.PostJSON(context.Background(), server.URL, nil, nil)
	if !errdefs.IsKind(err, errdefs.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("403 must not be retried, attempts = %d", got)
	}
}

func TestPostJSONConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := newTestClient()
	err := c.PostJSON(context.Background(), url, nil, nil)
	if !errdefs.IsKind(err, errdefs.KindConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if errdefs.AsError(err).Service != "model" {
		t.Errorf("connection error should carry the service name")
	}
}

func TestPostJSONTimeoutNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := newTestClient(WithTimeout(30*time.Millisecond))
	err := c.PostJSON(context.Background(), server.URL, nil, nil)
	if !errdefs.IsKind(err, errdefs.KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("timeouts must not be retried, attempts = %d", got)
	}
}

func TestPostJSONErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"error","error":"mesh is degenerate"}`))
	}))
	defer server.Close()

	c := newTestClient()
	err := c.PostJSON(context.Background(), server.URL, nil, nil)
	if !errdefs.IsKind(err, errdefs.KindResponse) {
		t.Fatalf("expected response error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mesh is degenerate") {
		t.Errorf("error should carry the downstream message, got %v", err)
	}
}

func TestBearerForwarding(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	// Static token from config.
	c := newTestClient(WithBearer("static-token"))
	if err := c.PostJSON(context.Background(), server.URL, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := gotAuth.Load(); got != "Bearer static-token" {
		t.Errorf("auth header = %v, want static token", got)
	}

	// An inbound bearer on the context wins.
	ctx := auth.WithBearer(context.Background(), "inbound-token")
	if err := c.PostJSON(ctx, server.URL, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := gotAuth.Load(); got != "Bearer inbound-token" {
		t.Errorf("auth header = %v, want inbound token", got)
	}
}

func TestBackoffGrowth(t *testing.T) {
	c := New(WithBaseDelay(300 * time.Millisecond))

	first := c.backoff(1)
	second := c.backoff(2)
	if first != 330*time.Millisecond {
		t.Errorf("first retry delay = %v, want 330ms", first)
	}
	if second != 660*time.Millisecond {
		t.Errorf("second retry delay = %v, want 660ms", second)
	}
}

func TestErrorFromStatusTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	e := errorFromStatus(http.StatusBadGateway, []byte(long))
	if len(e.Message) > maxErrorBodyBytes+20 {
		t.Errorf("message not truncated: %d bytes", len(e.Message))
	}
	if e.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", e.StatusCode)
	}
}
