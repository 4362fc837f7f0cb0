package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditCmd_RequestsAudit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/loop/audit", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"requested": true})
	}))
	defer srv.Close()

	require.NoError(t, auditCmd(srv.URL, ""))
}

func TestAuditCmd_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"not running"}`))
	}))
	defer srv.Close()

	err := auditCmd(srv.URL, "")
	require.Error(t, err)
}

func TestNewAuditCommand(t *testing.T) {
	cmd := NewAuditCommand()
	assert.Equal(t, "audit", cmd.Use)
}
