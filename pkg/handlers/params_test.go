package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseIDs(t *testing.T) {
	parsers := []struct {
		param     string
		errorCode string
		parse     func(http.ResponseWriter, *http.Request, *zap.Logger) (uuid.UUID, bool)
	}{
		{"pid", "invalid_project_id", ParseProjectID},
		{"tid", "invalid_table_id", ParseTableID},
		{"cid", "invalid_column_id", ParseColumnID},
		{"lid", "invalid_link_id", ParseLinkID},
		{"rid", "invalid_rule_id", ParseRuleID},
	}

	for _, p := range parsers {
		t.Run(p.param, func(t *testing.T) {
			want := uuid.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue(p.param, want.String())
			rec := httptest.NewRecorder()

			got, ok := p.parse(rec, req, zap.NewNop())
			require.True(t, ok)
			assert.Equal(t, want, got)

			for _, bad := range []string{"", "not-a-uuid"} {
				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.SetPathValue(p.param, bad)
				rec := httptest.NewRecorder()

				got, ok := p.parse(rec, req, zap.NewNop())
				assert.False(t, ok)
				assert.Equal(t, uuid.Nil, got)
				assert.Equal(t, http.StatusBadRequest, rec.Code)

				var resp map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, p.errorCode, resp["error"])
			}
		})
	}
}

func TestParseProjectAndTableIDs_StopsAtFirstInvalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.SetPathValue("pid", "bad")
	req.SetPathValue("tid", uuid.NewString())
	rec := httptest.NewRecorder()

	_, _, ok := ParseProjectAndTableIDs(rec, req, zap.NewNop())
	assert.False(t, ok)
	assert.Contains(t, rec.Body.String(), "invalid_project_id")
}
