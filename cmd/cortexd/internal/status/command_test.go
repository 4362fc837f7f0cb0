package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_PrintsStateAndMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/loop/status", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":   "running",
			"metrics": map[string]any{"total": 3},
			"uptime":  "2 minutes ago",
		})
	}))
	defer srv.Close()

	require.NoError(t, statusCmd(srv.URL, "secret"))
}

func TestStatusCmd_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	err := statusCmd(srv.URL, "")
	require.Error(t, err)
}

func TestNewStatusCommand(t *testing.T) {
	cmd := NewStatusCommand()
	assert.Equal(t, "status", cmd.Use)
	assert.Contains(t, cmd.Aliases, "s")
}
