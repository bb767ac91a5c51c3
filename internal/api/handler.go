package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-alert-automation/internal/automation"
	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
	"github.com/mr1hm/go-alert-automation/internal/stream"
)

// Automation is the workflow surface the operator API drives.
type Automation interface {
	Approve(ctx context.Context, alertID, approverID int64) (*automation.Dispatch, error)
	Reject(ctx context.Context, alertID, operatorID int64, reason string) error
	CreateManualAlert(ctx context.Context, alert *models.DisasterAlert, operatorID int64) error
	Broadcast(ctx context.Context, alertID, operatorID int64) (*automation.Dispatch, error)
	ReportSOS(ctx context.Context, userID int64, lat, lon float64, message string) (*models.DisasterAlert, *automation.Dispatch, error)
	Stats(ctx context.Context) (automation.Stats, error)
}

// CycleRunner runs a monitoring cycle on demand. It reports false when the
// cycle was skipped because another one is running.
type CycleRunner interface {
	RunOnce(ctx context.Context) (automation.CycleReport, bool)
}

type Handler struct {
	store       repository.Store
	automation  Automation
	cycles      CycleRunner
	broadcaster *stream.Broadcaster
	auth        gin.HandlerFunc
}

func NewHandler(store repository.Store, svc Automation, cycles CycleRunner, broadcaster *stream.Broadcaster, jwtSecret []byte) *Handler {
	return &Handler{
		store:       store,
		automation:  svc,
		cycles:      cycles,
		broadcaster: broadcaster,
		auth:        AuthMiddleware(jwtSecret),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/alerts", h.listAlerts)
	api.GET("/alerts/stream", h.streamAlerts)

	authed := api.Group("", h.auth)
	authed.POST("/sos", h.reportSOS)

	admin := authed.Group("", RequireAdmin())
	admin.POST("/alerts", h.createAlert)
	admin.POST("/alerts/:id/broadcast", h.broadcastAlert)

	auto := admin.Group("/automation")
	auto.GET("/pending", h.listPending)
	auto.POST("/alerts/:id/approve", h.approveAlert)
	auto.POST("/alerts/:id/reject", h.rejectAlert)
	auto.GET("/logs", h.listLogs)
	auto.GET("/stats", h.stats)
	auto.POST("/trigger", h.trigger)

	auto.GET("/rules", h.listRules)
	auto.POST("/rules", h.createRule)
	auto.GET("/rules/:id", h.getRule)
	auto.PUT("/rules/:id", h.updateRule)
	auto.DELETE("/rules/:id", h.deleteRule)
	auto.PATCH("/rules/:id/toggle", h.toggleRule)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// respondError maps workflow and store errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		abort(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, automation.ErrInvalidAlert):
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, automation.ErrNotPending),
		errors.Is(err, automation.ErrNotManual),
		errors.Is(err, automation.ErrInactive),
		errors.Is(err, repository.ErrDuplicate):
		abort(c, http.StatusConflict, "conflict", err.Error())
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		abort(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abort(c, http.StatusBadRequest, "bad_request", "invalid id")
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}
