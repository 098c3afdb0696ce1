package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"count": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"count": 3}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "artifact is required")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "artifact is required"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Artifact string `json:"artifact"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"artifact": "a.csv"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "a.csv", dst.Artifact)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown": 1}`))
	assert.Error(t, DecodeJSON(req, &dst), "unknown fields are rejected")
}
