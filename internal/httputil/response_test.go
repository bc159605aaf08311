package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"points": 42})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"points":42}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteJSONOK(rec, []string{"a"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["a"]`, rec.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]interface{}{"bad": make(chan int)})
	assert.Equal(t, http.StatusOK, rec.Code, "status is already sent")
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid route_id") }, http.StatusBadRequest, "invalid route_id"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "session not found") }, http.StatusNotFound, "session not found"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "already tracking") }, http.StatusConflict, "already tracking"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "disk full") }, http.StatusInternalServerError, "disk full"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w) }, http.StatusMethodNotAllowed, "method not allowed"},
		{"custom", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusServiceUnavailable, "location disabled") }, http.StatusServiceUnavailable, "location disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestMethodNotAllowed_Allow(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodGet, http.MethodDelete)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Allow"))

	rec = httptest.NewRecorder()
	MethodNotAllowed(rec)
	assert.Empty(t, rec.Header().Get("Allow"))
}
