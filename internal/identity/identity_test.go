package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, string, string, bool) {
	t.Helper()
	var clientID, sessionID string
	var isNew bool
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID = ClientIDFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
		isNew = IsNewSession(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, clientID, sessionID, isNew
}

func TestMiddleware_IssuesClientCookie(t *testing.T) {
	t.Parallel()

	rec, clientID, _, _ := serve(t, httptest.NewRequest(http.MethodGet, "/", nil))
	if !isValidClientID(clientID) {
		t.Fatalf("Expected a valid client ID, got %q", clientID)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != ClientCookieName || cookies[0].Value != clientID {
		t.Errorf("Expected client cookie %q, got %+v", clientID, cookies)
	}
}

func TestMiddleware_ReusesClientCookie(t *testing.T) {
	t.Parallel()

	id := "c_" + strings.Repeat("ab", 16)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: id})

	_, clientID, _, _ := serve(t, req)
	if clientID != id {
		t.Errorf("Expected client ID %s, got %s", id, clientID)
	}
}

func TestMiddleware_RejectsForgedClientCookie(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "admin"})

	_, clientID, _, _ := serve(t, req)
	if clientID == "admin" || !isValidClientID(clientID) {
		t.Errorf("Expected a freshly generated client ID, got %q", clientID)
	}
}

func TestMiddleware_SessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		query   string
		want    string
		wantNew bool
	}{
		{name: "header", header: "tab-1", want: "tab-1"},
		{name: "query", query: "tab-2", want: "tab-2"},
		{name: "header wins", header: "tab-1", query: "tab-2", want: "tab-1"},
		{name: "invalid characters", header: "tab 1;drop", wantNew: true},
		{name: "missing", wantNew: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target := "/"
			if tt.query != "" {
				target += "?" + SessionQueryParam + "=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(SessionHeaderName, tt.header)
			}

			_, _, sessionID, isNew := serve(t, req)
			if isNew != tt.wantNew {
				t.Errorf("Expected new=%v, got %v", tt.wantNew, isNew)
			}
			if tt.wantNew {
				if !strings.HasPrefix(sessionID, "s_") {
					t.Errorf("Expected allocated session ID, got %q", sessionID)
				}
				return
			}
			if sessionID != tt.want {
				t.Errorf("Expected session ID %q, got %q", tt.want, sessionID)
			}
		})
	}
}

func TestSanitizeSessionID(t *testing.T) {
	t.Parallel()

	if got := SanitizeSessionID("  tab-1 "); got != "tab-1" {
		t.Errorf("Expected trimmed ID, got %q", got)
	}
	if got := SanitizeSessionID(strings.Repeat("a", 129)); got != "" {
		t.Errorf("Expected over-long ID to be rejected, got %q", got)
	}
}
