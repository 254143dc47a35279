package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientHandler(t *testing.T) {
	t.Parallel()

	h := ClientHandler()
	tests := []struct {
		path        string
		wantStatus  int
		wantPage    bool
		wantNoCache bool
	}{
		{"/", http.StatusOK, true, true},
		{"/sessions/tab-1", http.StatusOK, true, true},
		{"/app.js", http.StatusOK, false, false},
		{"/missing.js", http.StatusNotFound, false, false},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		if rec.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.wantStatus, rec.Code)
			continue
		}
		isPage := strings.Contains(rec.Body.String(), "<html")
		if isPage != tt.wantPage {
			t.Errorf("%s: expected page=%v, got %v", tt.path, tt.wantPage, isPage)
		}
		if got := rec.Header().Get("Cache-Control") == "no-cache"; got != tt.wantNoCache {
			t.Errorf("%s: expected no-cache=%v, got %v", tt.path, tt.wantNoCache, got)
		}
	}
}
