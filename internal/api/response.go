package api

import (
	"encoding/json"
	"time"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

type alertResponse struct {
	ID              int64           `json:"id"`
	Type            string          `json:"type"`
	Severity        models.Severity `json:"severity"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Source          string          `json:"source"`
	Trigger         json.RawMessage `json:"trigger,omitempty"`
	ExternalEventID string          `json:"external_event_id,omitempty"`
	AffectedAreas   []string        `json:"affected_areas,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	RadiusKm        *float64        `json:"radius_km,omitempty"`
	IsActive        bool            `json:"is_active"`
	AutoApproved    bool            `json:"auto_approved"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CreatedBy       *int64          `json:"created_by,omitempty"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

func toAlertResponse(a *models.DisasterAlert) alertResponse {
	trigger, _ := models.EncodeTrigger(a.Trigger)
	return alertResponse{
		ID:              a.ID,
		Type:            a.Type,
		Severity:        a.Severity,
		Title:           a.Title,
		Description:     a.Description,
		Source:          string(a.Source),
		Trigger:         trigger,
		ExternalEventID: a.ExternalEventID,
		AffectedAreas:   a.AffectedAreas,
		Latitude:        a.Latitude,
		Longitude:       a.Longitude,
		RadiusKm:        a.RadiusKm,
		IsActive:        a.IsActive,
		AutoApproved:    a.AutoApproved,
		ApprovedBy:      a.ApprovedBy,
		ApprovedAt:      a.ApprovedAt,
		CreatedBy:       a.CreatedBy,
		ExpiresAt:       a.ExpiresAt,
		CreatedAt:       a.CreatedAt,
	}
}

type ruleResponse struct {
	ID         int64                `json:"id"`
	Name       string               `json:"name"`
	Type       models.RuleType      `json:"type"`
	Conditions json.RawMessage      `json:"conditions"`
	Template   models.AlertTemplate `json:"template"`
	IsActive   bool                 `json:"is_active"`
	Priority   int                  `json:"priority"`
	CreatedBy  int64                `json:"created_by"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func toRuleResponse(r *models.ThresholdRule) ruleResponse {
	conditions := r.Conditions
	if !json.Valid(conditions) {
		// corrupt rows are returned as a JSON string
		conditions, _ = json.Marshal(string(r.Conditions))
	}
	return ruleResponse{
		ID:         r.ID,
		Name:       r.Name,
		Type:       r.Type,
		Conditions: conditions,
		Template:   r.Template,
		IsActive:   r.IsActive,
		Priority:   r.Priority,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type logResponse struct {
	ID            int64            `json:"id"`
	TriggerType   string           `json:"trigger_type"`
	TriggerData   json.RawMessage  `json:"trigger_data,omitempty"`
	RuleID        *int64           `json:"rule_id,omitempty"`
	RuleName      *string          `json:"rule_name,omitempty"`
	AlertID       *int64           `json:"alert_id,omitempty"`
	Status        models.LogStatus `json:"status"`
	Reason        string           `json:"reason"`
	UsersTargeted int              `json:"users_targeted"`
	UsersNotified int              `json:"users_notified"`
	CreatedAt     time.Time        `json:"created_at"`
}

func toLogResponse(e *models.AutomationLogEntry) logResponse {
	var data json.RawMessage
	if json.Valid(e.TriggerData) {
		data = e.TriggerData
	}
	return logResponse{
		ID:            e.ID,
		TriggerType:   e.TriggerType,
		TriggerData:   data,
		RuleID:        e.RuleID,
		RuleName:      e.RuleName,
		AlertID:       e.AlertID,
		Status:        e.Status,
		Reason:        e.Reason,
		UsersTargeted: e.UsersTargeted,
		UsersNotified: e.UsersNotified,
		CreatedAt:     e.CreatedAt,
	}
}
