package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if !strings.Contains(body, `href="/docs/feeds"`) {
		t.Fatalf("docs missing link to feed docs")
	}
}

func TestFeedDocs(t *testing.T) {
	h := NewServer(&stubService{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/docs/feeds", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "/api/v1/ws") {
		t.Fatalf("feed docs missing websocket endpoint")
	}
}
