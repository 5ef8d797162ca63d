package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireActor_MissingHeader(t *testing.T) {
	handler := RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing actor identity")
}

func TestRequireActor_SetsContext(t *testing.T) {
	var gotActor string
	handler := RequireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = GetActorID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	req.Header.Set("X-Actor-ID", "user-42")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", gotActor)
}

func TestGetActorID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/entries", nil)
	assert.Empty(t, GetActorID(req.Context()))
}
