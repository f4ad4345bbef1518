package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(w, http.StatusNotFound, "not_found", "table not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "table not found", body["message"])
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusCreated, map[string]int{"count": 5}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"count": 5}`, w.Body.String())

	w = httptest.NewRecorder()
	assert.Error(t, WriteJSON(w, http.StatusOK, make(chan int)), "channels cannot be encoded")
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("get table: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid kind", fmt.Errorf("%w: %q", apperrors.ErrInvalidKind, "LOOKUP"), http.StatusBadRequest, "invalid_table_kind"},
		{"invalid rule", apperrors.ErrInvalidRule, http.StatusBadRequest, "invalid_rule"},
		{"invalid link", apperrors.ErrInvalidLink, http.StatusBadRequest, "invalid_link"},
		{"run active", apperrors.ErrRunActive, http.StatusConflict, "validation_running"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"load error", fmt.Errorf("read table header: %w", &apperrors.LoadError{Location: "a.csv", Reason: "file is empty"}),
			http.StatusUnprocessableEntity, "unreadable_table"},
		{"other", errors.New("connection reset"), http.StatusInternalServerError, "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := errorStatus(tt.err, "fallback")
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
