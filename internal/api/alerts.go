package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-alert-automation/internal/automation"
	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

const streamHeartbeat = 30 * time.Second

// listAlerts serves the active, broadcastable alerts as GeoJSON.
func (h *Handler) listAlerts(c *gin.Context) {
	page, ok := parsePagination(c)
	if !ok {
		return
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), repository.AlertFilter{
		Limit:         page.Limit,
		Offset:        page.Offset,
		Broadcastable: true,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(alerts))
}

// streamAlerts pushes approved and broadcast alerts as server-sent events
// until the client goes away or the broadcaster closes.
func (h *Handler) streamAlerts(c *gin.Context) {
	if h.broadcaster == nil {
		abort(c, http.StatusServiceUnavailable, "unavailable", "alert stream is disabled")
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("alert", toFeature(alert))
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
		}
		c.Writer.Flush()
	}
}

type createAlertRequest struct {
	Type          string          `json:"type" binding:"required"`
	Severity      models.Severity `json:"severity" binding:"required"`
	Title         string          `json:"title" binding:"required"`
	Description   string          `json:"description"`
	AffectedAreas []string        `json:"affected_areas"`
	Latitude      *float64        `json:"latitude"`
	Longitude     *float64        `json:"longitude"`
	RadiusKm      *float64        `json:"radius_km"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	Note          string          `json:"note"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if !bindJSON(c, &req) {
		return
	}
	user, _ := currentUser(c)

	alert := &models.DisasterAlert{
		Type:          req.Type,
		Severity:      req.Severity,
		Title:         req.Title,
		Description:   req.Description,
		AffectedAreas: req.AffectedAreas,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		RadiusKm:      req.RadiusKm,
		ExpiresAt:     req.ExpiresAt,
		Trigger:       &models.ManualTrigger{OperatorID: user.ID, Note: req.Note},
	}
	if err := h.automation.CreateManualAlert(c.Request.Context(), alert, user.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAlertResponse(alert))
}

func (h *Handler) broadcastAlert(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, _ := currentUser(c)

	dispatch, err := h.automation.Broadcast(c.Request.Context(), id, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.dispatchResponse(c, dispatch, "broadcast", nil)
}

type sosRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Message   string   `json:"message"`
}

func (h *Handler) reportSOS(c *gin.Context) {
	var req sosRequest
	if !bindJSON(c, &req) {
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		abort(c, http.StatusBadRequest, "bad_request", "coordinates out of range")
		return
	}
	user, _ := currentUser(c)

	alert, dispatch, err := h.automation.ReportSOS(c.Request.Context(), user.ID, *req.Latitude, *req.Longitude, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	h.dispatchResponse(c, dispatch, "sos", toAlertResponse(alert))
}

// dispatchResponse answers 202 with the queued dispatch, or 200 with the
// fanout result when the caller asked to wait for it.
func (h *Handler) dispatchResponse(c *gin.Context, d *automation.Dispatch, status string, alert any) {
	body := gin.H{"alert_id": d.AlertID, "status": status}
	if alert != nil {
		body["alert"] = alert
	}

	if c.Query("wait") != "true" {
		body["dispatch"] = "queued"
		c.JSON(http.StatusAccepted, body)
		return
	}

	res, err := d.Wait(c.Request.Context())
	if err != nil {
		respondError(c, fmt.Errorf("error waiting for dispatch of alert %d: %w", d.AlertID, err))
		return
	}
	body["dispatch"] = "done"
	body["result"] = gin.H{
		"targeted":    res.Targeted,
		"notified":    res.Notified,
		"failed":      res.Failed,
		"no_channel":  res.NoChannel,
		"escalations": res.Escalations,
	}
	c.JSON(http.StatusOK, body)
}
