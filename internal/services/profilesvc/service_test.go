package profilesvc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/dataclient"
	"github.com/sparkmatch/sparkmatch/internal/services/datasvc"
	"github.com/sparkmatch/sparkmatch/internal/services/profilesvc"
)

func newFixture(t *testing.T) (http.Handler, *auth.Issuer) {
	t.Helper()
	dataBackend := httptest.NewServer(datasvc.NewService().Handler())
	t.Cleanup(dataBackend.Close)

	issuer := auth.NewIssuer("test-secret")
	svc := profilesvc.NewService(issuer, dataclient.New(dataBackend.URL))
	return svc.Handler(), issuer
}

func do(t *testing.T, h http.Handler, issuer *auth.Issuer, userID int64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := issuer.IssueAccess(userID, "user")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestProfileCRUDPassThrough(t *testing.T) {
	h, issuer := newFixture(t)

	create := do(t, h, issuer, 42, http.MethodPost, "/profiles/", `{"user_id":42,"bio":"hello"}`)
	if create.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (body %s)", create.Code, create.Body.String())
	}

	get := do(t, h, issuer, 42, http.MethodGet, "/profiles/42", "")
	if get.Code != http.StatusOK {
		t.Fatalf("get: status = %d", get.Code)
	}
	var profile map[string]any
	if err := json.Unmarshal(get.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile["bio"] != "hello" {
		t.Errorf("bio = %v, want hello (body forwarded opaque)", profile["bio"])
	}

	del := do(t, h, issuer, 42, http.MethodDelete, "/profiles/42", "")
	if del.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", del.Code)
	}
	if after := do(t, h, issuer, 42, http.MethodGet, "/profiles/42", ""); after.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", after.Code)
	}
}

func TestCheckDefaultsToCaller(t *testing.T) {
	h, issuer := newFixture(t)

	w := do(t, h, issuer, 42, http.MethodGet, "/profiles/check", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Exists bool `json:"exists"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Exists {
		t.Error("exists = true before any profile was created")
	}

	do(t, h, issuer, 42, http.MethodPost, "/profiles/", `{"user_id":42}`)

	w = do(t, h, issuer, 42, http.MethodGet, "/profiles/check", "")
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Exists {
		t.Error("exists = false after the caller created a profile")
	}
}

func TestCheckExplicitUserID(t *testing.T) {
	h, issuer := newFixture(t)

	do(t, h, issuer, 7, http.MethodPost, "/profiles/", `{"user_id":7}`)

	w := do(t, h, issuer, 42, http.MethodGet, "/profiles/check?user_id=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Exists bool `json:"exists"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Exists {
		t.Error("exists = false for a created profile")
	}

	if w := do(t, h, issuer, 42, http.MethodGet, "/profiles/check?user_id=junk", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("malformed user_id: status = %d, want 422", w.Code)
	}
}

func TestUpstreamErrorEnvelopePreserved(t *testing.T) {
	h, issuer := newFixture(t)

	w := do(t, h, issuer, 42, http.MethodGet, "/profiles/999", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var wire struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &wire); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if wire.Error.Code != "BIZ_001" {
		t.Errorf("code = %s, want BIZ_001 passed through from the data service", wire.Error.Code)
	}
}
