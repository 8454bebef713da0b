package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus/internal/authmw"
	"github.com/haasonsaas/nexus/internal/condense"
	"github.com/haasonsaas/nexus/internal/convservice"
	"github.com/haasonsaas/nexus/internal/llmclient"
	"github.com/haasonsaas/nexus/internal/store"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/pkg/events"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, provider llmclient.Provider) (*Server, *convservice.Service) {
	t.Helper()
	st, err := store.New(t.TempDir(), t.TempDir())
	require.NoError(t, err)

	conv := convservice.New(st, provider, toolexec.BuiltinExecutor{}, toolexec.NewRegistry(),
		func() condense.Condenser { return condense.NoopCondenser{} }, nil, nil)
	t.Cleanup(conv.Shutdown)

	srv := New(conv, nil, time.Now(), "", t.TempDir())
	return srv, conv
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

func TestHandleAliveAndHealthAreUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	rec := doJSON(t, r, http.MethodGet, "/alive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetConversation(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	rec := doJSON(t, r, http.MethodPost, "/conversations/", StartConversationRequest{
		ConfirmationPolicy: events.ConfirmationNever,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var created events.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, r, http.MethodGet, "/conversations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/conversations/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateConversationRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/conversations/", bytes.NewBufferString("not-json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchAndCountConversations(t *testing.T) {
	srv, conv := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	_, err := conv.Create(convservice.NewConversationOptions{})
	require.NoError(t, err)
	_, err = conv.Create(convservice.NewConversationOptions{})
	require.NoError(t, err)

	rec := doJSON(t, r, http.MethodGet, "/conversations/search?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items      []events.Conversation `json:"items"`
		NextPageID string                `json:"next_page_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.NotEmpty(t, resp.NextPageID)

	rec = doJSON(t, r, http.MethodGet, "/conversations/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	require.Equal(t, 2, count)
}

func TestPauseResumeConflictDetection(t *testing.T) {
	srv, conv := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	es, err := conv.Create(convservice.NewConversationOptions{})
	require.NoError(t, err)
	id := es.Conversation().ID

	// Idle conversation is not paused: resume should conflict.
	rec := doJSON(t, r, http.MethodPost, "/conversations/"+id+"/resume", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, conv.Start(context.Background(), id))
	require.Equal(t, events.StatusFinished, es.Conversation().Status)

	// Terminal conversation cannot be paused.
	rec = doJSON(t, r, http.MethodPost, "/conversations/"+id+"/pause", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	srv, conv := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	es, err := conv.Create(convservice.NewConversationOptions{})
	require.NoError(t, err)
	id := es.Conversation().ID

	rec := doJSON(t, r, http.MethodDelete, "/conversations/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/conversations/"+id, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageAndSearchEvents(t *testing.T) {
	srv, conv := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	es, err := conv.Create(convservice.NewConversationOptions{})
	require.NoError(t, err)
	id := es.Conversation().ID

	rec := doJSON(t, r, http.MethodPost, "/conversations/"+id+"/events/", SendMessageRequest{
		Role:    events.RoleUser,
		Content: []events.ContentBlock{events.TextBlock("hello")},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/conversations/"+id+"/events/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []events.MessageEvent `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Items)

	rec = doJSON(t, r, http.MethodGet, "/conversations/"+id+"/events/count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRespondToConfirmationOverHTTP(t *testing.T) {
	srv, conv := newTestServer(t, llmclient.NewFakeProvider(llmclient.StepResult{
		ToolCalls: []llmclient.ToolCallResult{
			{ToolName: "execute_bash", ToolCallID: "call-1", Action: events.BashAction{Command: "echo hi"}, SecurityRisk: events.SecurityRiskHigh},
		},
	}))
	r := srv.Router(authmw.NewChecker(nil), nil)

	es, err := conv.Create(convservice.NewConversationOptions{ConfirmationPolicy: events.ConfirmationAlways})
	require.NoError(t, err)
	id := es.Conversation().ID

	require.NoError(t, conv.Start(context.Background(), id))
	require.Equal(t, events.StatusWaitingForConfirmation, es.Conversation().Status)

	rec := doJSON(t, r, http.MethodPost, "/conversations/"+id+"/events/respond_to_confirmation", RespondToConfirmationRequest{
		Accept: false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, events.StatusIdle, es.Conversation().Status)
}

func TestRequireSessionKeyRejectsRequestsWithoutKey(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker([]string{"secret-key"}), nil)

	rec := doJSON(t, r, http.MethodGet, "/conversations/search", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/conversations/search", nil)
	req.Header.Set(authmw.SessionKeyHeader, "secret-key")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	require.Equal(t, http.StatusOK, rec2.Code)
}

func TestFileUploadDownloadRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "note.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello workspace"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/file/upload/note.txt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/file/download/note.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello workspace", rec.Body.String())
}

func TestFileDownloadRejectsPathTraversal(t *testing.T) {
	srv, _ := newTestServer(t, llmclient.NewFakeProvider())
	r := srv.Router(authmw.NewChecker(nil), nil)

	rec := doJSON(t, r, http.MethodGet, "/file/download/../../etc/passwd", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
