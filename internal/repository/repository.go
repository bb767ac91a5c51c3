package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type RuleFilter struct {
	Type       *models.RuleType
	ActiveOnly bool
}

// RuleRepository lists rules ordered by priority desc, id asc.
type RuleRepository interface {
	AddRule(ctx context.Context, r *models.ThresholdRule) error
	GetRule(ctx context.Context, id int64) (*models.ThresholdRule, error)
	UpdateRule(ctx context.Context, r *models.ThresholdRule) error
	SetRuleActive(ctx context.Context, id int64, active bool) error
	DeleteRule(ctx context.Context, id int64) error
	ListRules(ctx context.Context, opts RuleFilter) ([]models.ThresholdRule, error)
}

type AlertFilter struct {
	Limit         int
	Offset        int
	Source        *models.AlertSource
	ActiveOnly    bool
	PendingOnly   bool // automated, active, not yet approved
	Broadcastable bool // active, approved or manual; never sos
}

type AlertRepository interface {
	AddAlert(ctx context.Context, a *models.DisasterAlert) error
	GetAlert(ctx context.Context, id int64) (*models.DisasterAlert, error)
	ListAlerts(ctx context.Context, opts AlertFilter) ([]models.DisasterAlert, error)
	// ApproveAlert flips a pending alert to approved. It reports false when
	// the alert was not pending or had expired by at.
	ApproveAlert(ctx context.Context, id, approverID int64, at time.Time) (bool, error)
	// RejectAlert deactivates a pending alert. It reports false when the
	// alert was not pending or had expired by at.
	RejectAlert(ctx context.Context, id int64, at time.Time) (bool, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	RecentAreaAlertExists(ctx context.Context, source models.AlertSource, area string, since time.Time) (bool, error)
	EventAlertExists(ctx context.Context, source models.AlertSource, eventID string) (bool, error)
}

type LogFilter struct {
	Limit       int
	Offset      int
	Status      *models.LogStatus
	TriggerType string
}

type LogRepository interface {
	AddLog(ctx context.Context, e *models.AutomationLogEntry) error
	ListLogs(ctx context.Context, opts LogFilter) ([]models.AutomationLogEntry, int64, error)
	// UpdateLogStatusByAlert sets the status of an alert's entry, replacing
	// its reason, and returns the entry id.
	UpdateLogStatusByAlert(ctx context.Context, alertID int64, status models.LogStatus, reason string) (int64, error)
	// AppendLogStatusByAlert is UpdateLogStatusByAlert but keeps the
	// existing reason and appends note to it.
	AppendLogStatusByAlert(ctx context.Context, alertID int64, status models.LogStatus, note string) (int64, error)
	SetUsersNotified(ctx context.Context, logID int64, n int) error
	CountLogsByStatus(ctx context.Context) (map[models.LogStatus]int64, error)
}

type AttemptRepository interface {
	AddAttempts(ctx context.Context, attempts []*models.NotificationAttempt) error
	UpdateAttemptStatus(ctx context.Context, id int64, status models.AttemptStatus, detail string) error
	ListAttempts(ctx context.Context, alertID int64) ([]models.NotificationAttempt, error)
}

type RecipientFilter struct {
	Role       *models.Role
	OnDutyOnly bool
}

type RecipientRepository interface {
	AddRecipient(ctx context.Context, r *models.Recipient) error
	AddDeviceToken(ctx context.Context, recipientID int64, token string) error
	SetPreferences(ctx context.Context, recipientID int64, p models.NotificationPreferences) error
	GetRecipient(ctx context.Context, id int64) (*models.Recipient, error)
	ListRecipients(ctx context.Context, opts RecipientFilter) ([]models.Recipient, error)
}

// Store is everything the automation pipeline persists.
type Store interface {
	RuleRepository
	AlertRepository
	LogRepository
	AttemptRepository
	RecipientRepository
}
