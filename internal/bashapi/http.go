package bashapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/haasonsaas/nexus/pkg/events"
)

// HTTPHandler implements spec.md §6.3's REST routes on top of Service.
type HTTPHandler struct {
	svc *Service
}

// NewHTTPHandler builds an HTTPHandler.
func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register mounts every /bash/... route onto r (an authenticated group, the
// same way internal/httpapi mounts /conversations).
func (h *HTTPHandler) Register(r gin.IRouter) {
	bash := r.Group("/bash")
	bash.POST("/execute_bash_command", h.handleExecute)
	bash.GET("/bash_events/search", h.handleSearch)
	bash.GET("/bash_events/", h.handleBatchGet)
	bash.GET("/bash_events/:event_id", h.handleGet)
	bash.DELETE("/bash_events", h.handleClear)
}

func (h *HTTPHandler) handleExecute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "command must not be empty"})
		return
	}
	cmd, err := h.svc.Execute(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (h *HTTPHandler) handleSearch(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	order := SortTimestampAsc
	if strings.EqualFold(c.Query("sort_order"), "TIMESTAMP_DESC") {
		order = SortTimestampDesc
	}
	filter := Filter{
		Kind:      events.Kind(c.Query("kind__eq")),
		CommandID: events.ID(c.Query("command_id__eq")),
	}
	page, err := h.svc.SearchEvents(c.Query("page_id"), limit, filter, order)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	resp := gin.H{"items": page.Items}
	if page.NextCursor != "" {
		resp["next_page_id"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) handleGet(c *gin.Context) {
	event, err := h.svc.GetEvent(events.ID(c.Param("event_id")))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "bash event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *HTTPHandler) handleBatchGet(c *gin.Context) {
	ids := splitCSV(c.Query("event_ids"))
	if len(ids) > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "at most 100 event_ids allowed"})
		return
	}
	eventIDs := make([]events.ID, len(ids))
	for i, id := range ids {
		eventIDs[i] = events.ID(id)
	}
	got, err := h.svc.BatchGetEvents(eventIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, got)
}

func (h *HTTPHandler) handleClear(c *gin.Context) {
	count, err := h.svc.ClearEvents()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared_count": count})
}

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
