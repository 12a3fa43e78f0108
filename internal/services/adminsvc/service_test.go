package adminsvc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/services/adminsvc"
	"github.com/sparkmatch/sparkmatch/internal/services/datasvc"
)

const adminPassword = "hunter2"

func newFixture(t *testing.T) (http.Handler, *auth.Issuer) {
	t.Helper()
	dataBackend := httptest.NewServer(datasvc.NewService().Handler())
	t.Cleanup(dataBackend.Close)

	issuer := auth.NewIssuer("test-secret")
	svc := adminsvc.NewService(issuer, adminPassword, dataclient.New(dataBackend.URL))
	return svc.Handler(), issuer
}

func login(t *testing.T, h http.Handler, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"password": password})
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLoginIssuesAdminToken(t *testing.T) {
	h, issuer := newFixture(t)

	w := login(t, h, adminPassword)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
	if _, err := issuer.VerifyAdmin(resp.AccessToken); err != nil {
		t.Errorf("issued token failed admin verification: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newFixture(t)
	w := login(t, h, "wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestModerationRequiresAdminToken(t *testing.T) {
	h, issuer := newFixture(t)

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/admin/moderation/reports", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	// User token is forbidden.
	userToken, _ := issuer.IssueAccess(42, "alice")
	req = httptest.NewRequest(http.MethodGet, "/admin/moderation/reports", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("user token: status = %d, want 403", w.Code)
	}
}

func TestBanLifecycle(t *testing.T) {
	h, issuer := newFixture(t)
	token, _ := issuer.IssueAdmin(1)

	doAdmin := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := doAdmin(http.MethodPost, "/admin/moderation/ban", `{"user_id":42,"reason":"abuse"}`); w.Code != http.StatusOK {
		t.Fatalf("ban: status = %d (body %s)", w.Code, w.Body.String())
	}

	w := doAdmin(http.MethodGet, "/admin/moderation/bans", "")
	if w.Code != http.StatusOK {
		t.Fatalf("bans: status = %d", w.Code)
	}
	var resp struct {
		Bans []struct {
			UserID int64  `json:"user_id"`
			Reason string `json:"reason"`
		} `json:"bans"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Bans) != 1 || resp.Bans[0].UserID != 42 {
		t.Fatalf("bans = %+v, want user 42", resp.Bans)
	}

	if w := doAdmin(http.MethodPost, "/admin/moderation/unban", `{"user_id":42}`); w.Code != http.StatusOK {
		t.Errorf("unban: status = %d", w.Code)
	}
	if w := doAdmin(http.MethodPost, "/admin/moderation/unban", `{"user_id":42}`); w.Code != http.StatusNotFound {
		t.Errorf("double unban: status = %d, want 404", w.Code)
	}
}

func TestModerationEndpointRateLimit(t *testing.T) {
	h, issuer := newFixture(t)
	token, _ := issuer.IssueAdmin(1)

	// Each /admin/moderation/{action} path is capped at 10/min.
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/moderation/bans", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}
	for i := 0; i < 10; i++ {
		if w := do(); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}
	if w := do(); w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 11: status = %d, want 429", w.Code)
	}
}

func TestReportsForwarded(t *testing.T) {
	h, issuer := newFixture(t)
	token, _ := issuer.IssueAdmin(1)

	req := httptest.NewRequest(http.MethodGet, "/admin/moderation/reports", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Reports []json.RawMessage `json:"reports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
