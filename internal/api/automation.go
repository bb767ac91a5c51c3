package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

func (h *Handler) listPending(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), repository.AlertFilter{
		Limit:       page.Limit,
		Offset:      page.Offset,
		PendingOnly: true,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]alertResponse, len(alerts))
	for i := range alerts {
		out[i] = toAlertResponse(&alerts[i])
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out, "pagination": page})
}

func (h *Handler) approveAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, _ := currentUser(c)

	dispatch, err := h.automation.Approve(c.Request.Context(), id, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.dispatchResponse(c, dispatch, "approved", nil)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req rejectRequest
	// the body is optional
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	user, _ := currentUser(c)

	if err := h.automation.Reject(c.Request.Context(), id, user.ID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert_id": id, "status": "rejected"})
}

func (h *Handler) listLogs(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}

	filter := repository.LogFilter{Limit: page.Limit, Offset: page.Offset}
	if s := c.Query("status"); s != "" {
		status := models.LogStatus(s)
		if !status.Valid() {
			abort(c, http.StatusBadRequest, "bad_request", "invalid status filter")
			return
		}
		filter.Status = &status
	}
	if t := c.Query("trigger_type"); t != "" {
		switch t {
		case models.TriggerTypeWeather, models.TriggerTypeEarthquake, models.TriggerTypeManual, models.TriggerTypeSOS:
			filter.TriggerType = t
		default:
			abort(c, http.StatusBadRequest, "bad_request", "invalid trigger_type filter")
			return
		}
	}

	entries, total, err := h.store.ListLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]logResponse, len(entries))
	for i := range entries {
		out[i] = toLogResponse(&entries[i])
	}
	page.Total = total
	c.JSON(http.StatusOK, gin.H{"logs": out, "pagination": page})
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.automation.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// trigger runs a monitoring cycle now and returns its report. The cycle
// outlives a client disconnect.
func (h *Handler) trigger(c *gin.Context) {
	report, ran := h.cycles.RunOnce(context.WithoutCancel(c.Request.Context()))
	if !ran {
		abort(c, http.StatusConflict, "conflict", "a monitoring cycle is already running")
		return
	}
	c.JSON(http.StatusOK, report)
}
