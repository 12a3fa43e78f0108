package mediasvc_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/sparkmatch/sparkmatch/internal/auth"
	"github.com/sparkmatch/sparkmatch/internal/services/mediasvc"
)

type flagAll struct{}

func (flagAll) Screen(string, []byte) (bool, string) { return true, "nsfw" }

func newFixture(t *testing.T, screener mediasvc.Screener) (http.Handler, *auth.Issuer) {
	t.Helper()
	issuer := auth.NewIssuer("test-secret")
	svc := mediasvc.NewService(issuer, screener)
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
	req.Header.Set("Content-Type", "image/jpeg")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestUploadAndFetch(t *testing.T) {
	h, issuer := newFixture(t, nil)

	w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "jpeg-bytes")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		PhotoID int64 `json:"photo_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.PhotoID == 0 {
		t.Fatal("upload response missing photo_id")
	}

	get := do(t, h, issuer, 1, http.MethodGet, "/media/photos/"+strconv.FormatInt(resp.PhotoID, 10), "")
	if get.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", get.Code)
	}
	if got := get.Body.String(); got != "jpeg-bytes" {
		t.Errorf("fetched body = %q", got)
	}
	if ct := get.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
}

func TestUploadEmptyRejected(t *testing.T) {
	h, issuer := newFixture(t, nil)
	w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestUploadFlaggedContentRejected(t *testing.T) {
	h, issuer := newFixture(t, flagAll{})
	w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "whatever")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestDeleteOwnership(t *testing.T) {
	h, issuer := newFixture(t, nil)

	w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "jpeg-bytes")
	var resp struct {
		PhotoID int64 `json:"photo_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	path := "/media/photos/" + strconv.FormatInt(resp.PhotoID, 10)

	// Another user may not delete it.
	if w := do(t, h, issuer, 2, http.MethodDelete, path, ""); w.Code != http.StatusForbidden {
		t.Errorf("foreign delete: status = %d, want 403", w.Code)
	}
	// The owner may.
	if w := do(t, h, issuer, 1, http.MethodDelete, path, ""); w.Code != http.StatusOK {
		t.Errorf("owner delete: status = %d, want 200", w.Code)
	}
	// Gone afterwards.
	if w := do(t, h, issuer, 1, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("fetch after delete: status = %d, want 404", w.Code)
	}
}

func TestUploadEndpointRateLimit(t *testing.T) {
	h, issuer := newFixture(t, nil)

	// POST /media/photos is capped at 5/min in the endpoint tier.
	for i := 0; i < 5; i++ {
		if w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "jpeg-bytes"); w.Code != http.StatusCreated {
			t.Fatalf("upload %d: status = %d, want 201", i+1, w.Code)
		}
	}

	w := do(t, h, issuer, 1, http.MethodPost, "/media/photos", "jpeg-bytes")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("upload 6: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestUploadRequiresAuthentication(t *testing.T) {
	h, _ := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/media/photos", strings.NewReader("x"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
