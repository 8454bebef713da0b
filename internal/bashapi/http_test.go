package bashapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/pkg/events"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "bash_events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	svc := New(log, t.TempDir())
	r := gin.New()
	NewHTTPHandler(svc).Register(r)
	return r, svc
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleExecuteReturnsBashCommandImmediately(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/bash/execute_bash_command", ExecuteRequest{Command: "echo hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var cmd events.BashCommand
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmd))
	require.Equal(t, "echo hi", cmd.Command)
	require.NotEmpty(t, cmd.EventID())
}

func TestHandleExecuteRejectsEmptyCommand(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/bash/execute_bash_command", ExecuteRequest{Command: "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetReturns404ForUnknownEvent(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/bash/bash_events/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSearchAndClear(t *testing.T) {
	r, svc := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/bash/execute_bash_command", ExecuteRequest{Command: "true"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		page, err := svc.SearchEvents("", 100, Filter{}, SortTimestampAsc)
		return err == nil && len(page.Items) == 2
	}, 5*time.Second, 10*time.Millisecond)

	rec = doJSON(t, r, http.MethodGet, "/bash/bash_events/search?kind__eq=BashCommand", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []events.BashCommand `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)

	rec = doJSON(t, r, http.MethodDelete, "/bash/bash_events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared struct {
		ClearedCount int `json:"cleared_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cleared))
	require.Equal(t, 2, cleared.ClearedCount)
}
