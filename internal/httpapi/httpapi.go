package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/nexus/internal/authmw"
	"github.com/haasonsaas/nexus/internal/convservice"
	"github.com/haasonsaas/nexus/internal/eventlog"
	"github.com/haasonsaas/nexus/internal/eventservice"
	"github.com/haasonsaas/nexus/internal/toolexec"
	"github.com/haasonsaas/nexus/pkg/events"
)

// Server wires internal/convservice onto a gin.Engine per spec.md
// §6.1/§6.2/§6.5.
type Server struct {
	conversations   *convservice.Service
	logger          *slog.Logger
	startedAt       time.Time
	staticFilesPath string
	workspaceRoot   string
}

// New builds a Server. startedAt seeds the /server_info uptime counter.
// workspaceRoot anchors the top-level /file/upload and /file/download
// routes (spec.md §6.4), which — unlike every other route — are not
// scoped to a single conversation.
func New(conversations *convservice.Service, logger *slog.Logger, startedAt time.Time, staticFilesPath, workspaceRoot string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{conversations: conversations, logger: logger, startedAt: startedAt, staticFilesPath: staticFilesPath, workspaceRoot: workspaceRoot}
}

// Router builds the gin.Engine, installing checker/corsOrigins middleware
// ahead of every route this server owns.
func (s *Server) Router(checker *authmw.Checker, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(authmw.CORS(corsOrigins))

	r.GET("/alive", s.handleAlive)
	r.GET("/health", s.handleHealth)
	r.GET("/server_info", s.handleServerInfo)

	authed := r.Group("/")
	authed.Use(authmw.RequireSessionKey(checker))

	conversations := authed.Group("/conversations")
	conversations.GET("/search", s.handleSearchConversations)
	conversations.GET("/count", s.handleCountConversations)
	conversations.GET("/", s.handleBatchGetConversations)
	conversations.POST("/", s.handleCreateConversation)
	conversations.GET("/:id", s.handleGetConversation)
	conversations.POST("/:id/pause", s.handlePauseConversation)
	conversations.POST("/:id/resume", s.handleResumeConversation)
	conversations.DELETE("/:id", s.handleDeleteConversation)

	ev := conversations.Group("/:id/events")
	ev.GET("/search", s.handleSearchEvents)
	ev.GET("/count", s.handleCountEvents)
	ev.GET("/", s.handleBatchGetEvents)
	ev.POST("/", s.handleSendMessage)
	ev.GET("/:event_id", s.handleGetEvent)
	ev.POST("/respond_to_confirmation", s.handleRespondToConfirmation)

	authed.POST("/file/upload/*path", s.handleUploadFile)
	authed.GET("/file/download/*path", s.handleDownloadFile)

	if s.staticFilesPath != "" {
		r.Static("/static", s.staticFilesPath)
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/static/index.html")
		})
	}

	return r
}

func (s *Server) handleAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleServerInfo(c *gin.Context) {
	uptime := time.Since(s.startedAt)
	c.JSON(http.StatusOK, gin.H{
		"uptime":    uptime.Seconds(),
		"idle_time": 0,
	})
}

// --- conversations ---

// StartConversationRequest is the body of POST /conversations/.
type StartConversationRequest struct {
	Agent              events.AgentSpec        `json:"agent"`
	ConfirmationPolicy events.ConfirmationMode `json:"confirmation_policy"`
	SystemPrompt       string                  `json:"system_prompt"`
	Tools              []events.ToolSchema     `json:"tools"`
	InitialMessage     *string                 `json:"initial_message"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationf("invalid request body: %v", err))
		return
	}

	svc, err := s.conversations.Create(convservice.NewConversationOptions{
		Agent:              req.Agent,
		ConfirmationPolicy: req.ConfirmationPolicy,
		SystemPrompt:       req.SystemPrompt,
		Tools:              req.Tools,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if req.InitialMessage != nil {
		// SendMessage's own ensureSystemPrompt appends the SystemPromptEvent
		// ahead of the user's message, so Start (whose own drive would run
		// the agent with no message to react to) is skipped here.
		if _, err := svc.SendMessage(c.Request.Context(), []events.ContentBlock{events.TextBlock(*req.InitialMessage)}, true); err != nil {
			s.logger.Warn("failed to send initial message", "conversation_id", svc.Conversation().ID, "error", err)
		}
	} else if err := svc.Start(c.Request.Context()); err != nil {
		s.logger.Warn("failed to start conversation", "conversation_id", svc.Conversation().ID, "error", err)
	}

	c.JSON(http.StatusOK, svc.Conversation())
}

func (s *Server) handleSearchConversations(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	pageID := c.Query("page_id")
	statusFilter := events.ExecutionStatus(c.Query("status"))
	desc := strings.EqualFold(c.Query("sort_order"), "TIMESTAMP_DESC") || strings.EqualFold(c.Query("sort_order"), "CREATED_AT_DESC")

	all := s.conversations.List()
	if statusFilter != "" {
		filtered := all[:0:0]
		for _, conv := range all {
			if conv.Status == statusFilter {
				filtered = append(filtered, conv)
			}
		}
		all = filtered
	}
	if desc {
		sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	}

	start := 0
	if pageID != "" {
		for i, conv := range all {
			if conv.ID == pageID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}
	page := all[start:end]

	resp := gin.H{"items": page}
	if end < len(all) {
		resp["next_page_id"] = all[end-1].ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCountConversations(c *gin.Context) {
	statusFilter := events.ExecutionStatus(c.Query("status"))
	all := s.conversations.List()
	if statusFilter == "" {
		c.JSON(http.StatusOK, len(all))
		return
	}
	count := 0
	for _, conv := range all {
		if conv.Status == statusFilter {
			count++
		}
	}
	c.JSON(http.StatusOK, count)
}

func (s *Server) handleGetConversation(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, svc.Conversation())
}

func (s *Server) handleBatchGetConversations(c *gin.Context) {
	ids := splitCSV(c.Query("ids"))
	if len(ids) > 100 {
		respondError(c, validationf("at most 100 ids allowed"))
		return
	}
	out := make([]*events.Conversation, len(ids))
	for i, id := range ids {
		if svc, err := s.conversations.Get(id); err == nil {
			conv := svc.Conversation()
			out[i] = &conv
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handlePauseConversation(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	status := svc.Conversation().Status
	if status.Terminal() || status == events.StatusWaitingForConfirmation {
		respondError(c, conflictf("conversation %q cannot be paused from status %s", c.Param("id"), status))
		return
	}
	if err := s.conversations.Pause(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleResumeConversation(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if svc.Conversation().Status != events.StatusPaused {
		respondError(c, conflictf("conversation %q is not paused", c.Param("id")))
		return
	}
	if err := s.conversations.Resume(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	if err := s.conversations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- events ---

func (s *Server) handleSearchEvents(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	limit := parseLimit(c.Query("limit"))
	order := eventlog.SortTimestampAsc
	if strings.EqualFold(c.Query("sort_order"), "TIMESTAMP_DESC") {
		order = eventlog.SortTimestampDesc
	}
	var kinds []events.Kind
	if k := c.Query("kind"); k != "" {
		kinds = []events.Kind{events.Kind(k)}
	}

	page, err := svc.SearchEvents(c.Query("page_id"), limit, kinds, order)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"items": page.Items}
	if page.NextCursor != "" {
		resp["next_page_id"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCountEvents(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var kinds []events.Kind
	if k := c.Query("kind"); k != "" {
		kinds = []events.Kind{events.Kind(k)}
	}
	count, err := svc.CountEvents(kinds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, count)
}

func (s *Server) handleGetEvent(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	event, err := svc.GetEvent(events.ID(c.Param("event_id")))
	if err != nil {
		respondError(c, notFoundf("event %q not found", c.Param("event_id")))
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) handleBatchGetEvents(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ids := splitCSV(c.Query("event_ids"))
	if len(ids) > 100 {
		respondError(c, validationf("at most 100 event_ids allowed"))
		return
	}
	eventIDs := make([]events.ID, len(ids))
	for i, id := range ids {
		eventIDs[i] = events.ID(id)
	}
	got, err := svc.BatchGetEvents(eventIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// SendMessageRequest is the body of POST /conversations/{id}/events/.
type SendMessageRequest struct {
	Role    events.Role           `json:"role"`
	Content []events.ContentBlock `json:"content"`
	Run     bool                  `json:"run"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationf("invalid request body: %v", err))
		return
	}
	if _, err := svc.SendMessage(c.Request.Context(), req.Content, req.Run); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RespondToConfirmationRequest is the body of
// POST /conversations/{id}/events/respond_to_confirmation.
type RespondToConfirmationRequest struct {
	Accept bool    `json:"accept"`
	Reason *string `json:"reason"`
}

func (s *Server) handleRespondToConfirmation(c *gin.Context) {
	svc, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req RespondToConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationf("invalid request body: %v", err))
		return
	}
	if err := svc.RespondToConfirmation(c.Request.Context(), req.Accept, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- files ---
//
// spec.md §6.4's file routes are, unlike every other route here, not
// conversation-scoped: the original implementation runs one workspace per
// server process and takes an absolute filesystem path directly. Adapted
// to this server's multi-conversation workspace layout by resolving path
// (with its leading slash trimmed) against workspaceRoot through
// toolexec.Resolver, so traversal outside the workspace root is rejected
// the same way it is for the execute_bash/read_file/write_file tools.

func (s *Server) resolveFilePath(raw string) (string, error) {
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return "", validationf("path must not be empty")
	}
	resolved, err := (toolexec.Resolver{Root: s.workspaceRoot}).Resolve(raw)
	if err != nil {
		return "", validationf("invalid path: %v", err)
	}
	return resolved, nil
}

func (s *Server) handleUploadFile(c *gin.Context) {
	target, err := s.resolveFilePath(c.Param("path"))
	if err != nil {
		respondError(c, err)
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, validationf("missing multipart file field %q: %v", "file", err))
		return
	}
	defer file.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		respondError(c, fmt.Errorf("create parent directories: %w", err))
		return
	}

	out, err := os.Create(target)
	if err != nil {
		respondError(c, fmt.Errorf("create target file: %w", err))
		return
	}
	defer out.Close()

	buf := make([]byte, 8192)
	if _, err := io.CopyBuffer(out, file, buf); err != nil {
		respondError(c, fmt.Errorf("write file: %w", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDownloadFile(c *gin.Context) {
	target, err := s.resolveFilePath(c.Param("path"))
	if err != nil {
		respondError(c, err)
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			respondError(c, notFoundf("file not found"))
			return
		}
		respondError(c, err)
		return
	}
	if info.IsDir() {
		respondError(c, validationf("path is not a file"))
		return
	}

	c.FileAttachment(target, filepath.Base(target))
}

// --- helpers ---

func parseLimit(raw string) int {
	if raw == "" {
		return 100
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 100 {
		return 100
	}
	return n
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// respondError translates domain errors to the status codes spec.md §7
// names; anything unrecognized becomes a generic 500.
func respondError(c *gin.Context, err error) {
	var validation *ValidationError
	var notFound *NotFoundError
	var conflict *ConflictError
	var auth *AuthError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"detail": validation.Detail})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": notFound.Detail})
	case errors.As(err, &conflict):
		c.JSON(http.StatusBadRequest, gin.H{"detail": conflict.Detail})
	case errors.As(err, &auth):
		c.JSON(http.StatusUnauthorized, gin.H{"detail": auth.Detail})
	case errors.Is(err, convservice.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "conversation not found"})
	case errors.Is(err, eventservice.ErrNotWaitingForConfirmation):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, eventservice.ErrClosed):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}
