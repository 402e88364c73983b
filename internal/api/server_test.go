package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/buckets"
	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/control"
	"github.com/dgnsrekt/bucketspy/internal/settings"
)

type stubService struct {
	last control.Message
	resp control.Response
	err  error
}

func (s *stubService) Handle(ctx context.Context, msg control.Message) (control.Response, error) {
	s.last = msg
	return s.resp, s.err
}

func (s *stubService) Dispatch(ctx context.Context, msg control.Message) control.Response {
	s.last = msg
	if s.err != nil {
		return control.Response{Error: s.err.Error()}
	}
	return s.resp
}

func newTestServer(t *testing.T) (http.Handler, *capture.Engine) {
	t.Helper()
	return newTestServerWithStore(t, settings.NewMemoryStore())
}

func newTestServerWithStore(t *testing.T, store *settings.MemoryStore) (http.Handler, *capture.Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	eng := capture.NewEngine(capture.Options{}, store, nil, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewServer(control.NewDispatcher(eng, store), eng, nil), eng
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func observe(t *testing.T, eng *capture.Engine, url string, tab int) {
	t.Helper()
	ev := capture.RequestObserved{URL: url, Method: "GET", TabID: tab, At: time.Now().UTC()}
	if err := eng.Do(context.Background(), ev); err != nil {
		t.Fatalf("Do(RequestObserved) error = %v", err)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
}

func TestRequestsEndpoints(t *testing.T) {
	h, eng := newTestServer(t)
	observe(t, eng, "https://alpha.s3-us-east-1.amazonaws.com/a.txt", 1)
	observe(t, eng, "https://beta.s3-eu-west-1.amazonaws.com/b.txt", 2)

	w := do(t, h, http.MethodGet, "/api/v1/requests?tab_id=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/requests = %d %s", w.Code, w.Body.String())
	}
	var got struct {
		Requests []capture.CapturedRequest `json:"requests"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got.Requests) != 1 || got.Requests[0].TabID != 2 {
		t.Fatalf("requests for tab 2 = %+v", got.Requests)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/requests?tab_id=two", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("GET with bad tab_id = %d; want 400", w.Code)
	}

	if w := do(t, h, http.MethodDelete, "/api/v1/requests", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE /api/v1/requests = %d %s", w.Code, w.Body.String())
	}
	if n := len(eng.GetAll(nil)); n != 0 {
		t.Fatalf("after DELETE, %d requests retained; want 0", n)
	}
}

func TestBucketsEndpoint(t *testing.T) {
	h, eng := newTestServer(t)
	observe(t, eng, "https://alpha.s3-us-east-1.amazonaws.com/a.txt", 1)
	observe(t, eng, "https://alpha.s3-us-east-1.amazonaws.com/b.txt", 1)

	w := do(t, h, http.MethodGet, "/api/v1/buckets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/buckets = %d %s", w.Code, w.Body.String())
	}
	var got struct {
		Buckets []struct {
			Name         string `json:"name"`
			Region       string `json:"region"`
			RequestCount int    `json:"requestCount"`
			FirstSeenAgo string `json:"firstSeenAgo"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(got.Buckets) != 1 {
		t.Fatalf("buckets = %+v; want 1", got.Buckets)
	}
	b := got.Buckets[0]
	if b.Name != "alpha" || b.Region != "us-east-1" || b.RequestCount != 2 || b.FirstSeenAgo == "" {
		t.Fatalf("bucket = %+v", b)
	}
}

func TestBucketViewsHumanizeFirstSeen(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	views := bucketViews([]buckets.Summary{{Name: "a", FirstSeen: now.Add(-3 * time.Minute)}}, now)
	if len(views) != 1 || views[0].FirstSeenAgo != "3 minutes ago" {
		t.Fatalf("bucketViews() = %+v; want firstSeenAgo=\"3 minutes ago\"", views)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPut, "/api/v1/settings/isEnabled", `{"value": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /api/v1/settings/isEnabled = %d %s", w.Code, w.Body.String())
	}
	var got settingsView
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.IsEnabled || !got.ShowBadge {
		t.Fatalf("settings after PUT = %+v; want isEnabled=false showBadge=true", got)
	}

	if w := do(t, h, http.MethodPut, "/api/v1/settings/colour", `{"value": true}`); w.Code < 400 || w.Code >= 500 {
		t.Fatalf("PUT unknown setting = %d; want 4xx", w.Code)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	h, eng := newTestServer(t)
	observe(t, eng, "https://alpha.s3-us-east-1.amazonaws.com/a.txt", 4)

	w := do(t, h, http.MethodPost, "/api/v1/messages", `{"action": "getRequests", "tabId": 4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST getRequests = %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"tabId":4`) {
		t.Fatalf("POST getRequests body = %s; want tab 4 request", w.Body.String())
	}
}

func TestMessagesEndpointErrorReply(t *testing.T) {
	store := settings.NewMemoryStore()
	store.LoadErr = errors.New("disk gone")
	h, _ := newTestServerWithStore(t, store)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{"unknown_action", `{"action": "bogus"}`, http.StatusBadRequest, control.UnknownAction, control.CodeUnknownAction},
		{"settings_unavailable", `{"action": "getSettings"}`, http.StatusBadGateway, "failed to read settings: disk gone", control.CodeSettingsUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/messages", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("POST %s = %d %s; want %d", tt.body, w.Code, w.Body.String(), tt.wantStatus)
			}
			var got struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got.Error != tt.wantError || got.Code != tt.wantCode {
				t.Fatalf("POST %s reply = %+v; want error=%q code=%q", tt.body, got, tt.wantError, tt.wantCode)
			}
		})
	}
}

func TestMapErrSettingsUnavailable(t *testing.T) {
	svc := &stubService{err: &control.CodedError{Code: control.CodeSettingsUnavailable, Message: "failed to read settings", Cause: errors.New("locked")}}
	h := NewServer(svc, nil, nil)

	w := do(t, h, http.MethodGet, "/api/v1/settings", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("GET /api/v1/settings with failing store = %d; want 502", w.Code)
	}
	if svc.last.Action != control.ActionGetSettings {
		t.Fatalf("service action = %q; want %q", svc.last.Action, control.ActionGetSettings)
	}
}
