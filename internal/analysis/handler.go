package analysis

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"visibility-backend/internal/events"
	"visibility-backend/internal/providers"
	"visibility-backend/internal/shared/server/middleware"
	"visibility-backend/internal/shared/server/respond"
	"visibility-backend/internal/shared/telemetry"
	"visibility-backend/internal/usage"
)

const defaultKeepAlive = 15 * time.Second

// ProviderLister describes the configured providers.
type ProviderLister interface {
	Infos() []providers.Info
}

// Handler wires HTTP handlers to the analysis service.
type Handler struct {
	Svc       *Service
	Providers ProviderLister
	KeepAlive time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, list ProviderLister) *Handler {
	return &Handler{Svc: svc, Providers: list, KeepAlive: defaultKeepAlive}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/providers", h.listProviders)
}

func (h *Handler) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)
	run, err := h.Svc.Start(c.Request.Context(), userID, req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid analysis request", verr.Fields)
		case errors.Is(err, usage.ErrLimitReached):
			respond.Error(c, http.StatusTooManyRequests, "limit_reached", "You've reached your analysis limit. Upgrade your plan to continue.", []map[string]string{
				{"field": "usage", "issue": "limit_reached"},
			})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "timeout", "request canceled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}
	defer run.Cancel()

	c.Set(middleware.RunIDKey, run.ID)
	events.SetStreamHeaders(c.Writer.Header())
	c.Header("X-Run-Id", run.ID)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	h.stream(c, run)
}

// stream copies run events to the response until a terminal event, the end of the
// run or the client going away. A run that ends without a terminal event while the
// client is still connected has hit the run deadline; that is reported as an error.
func (h *Handler) stream(c *gin.Context, run *Run) {
	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-run.Events:
			if !ok {
				if c.Request.Context().Err() == nil {
					_ = h.write(c, events.New(events.StageFinalizing, events.Error{
						Message: "analysis timed out",
						Code:    CodeRunTimeout,
					}))
				}
				return
			}
			if err := h.write(c, ev); err != nil {
				telemetry.Warn("analysis.stream_write_failed", map[string]any{"run_id": run.ID, "error": err})
				return
			}
			if ev.Terminal() {
				return
			}
			ticker.Reset(keepAlive)
		case <-ticker.C:
			if err := events.WriteComment(c.Writer, "ping"); err != nil {
				return
			}
			c.Writer.Flush()
		case <-clientGone:
			telemetry.Info("analysis.client_gone", map[string]any{"run_id": run.ID})
			return
		}
	}
}

func (h *Handler) write(c *gin.Context, ev events.Event) error {
	if err := events.WriteFrame(c.Writer, ev); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (h *Handler) getAnalysis(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}
	c.Set(middleware.AnalysisIDKey, id)

	a, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}
	respond.OK(c, a)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
			return
		}
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	resp := make([]Summary, 0, len(list))
	for _, a := range list {
		resp = append(resp, a.summary())
	}
	respond.OK(c, resp)
}

func (h *Handler) listProviders(c *gin.Context) {
	if h.Providers == nil {
		respond.OK(c, []providers.Info{})
		return
	}
	respond.OK(c, h.Providers.Infos())
}
