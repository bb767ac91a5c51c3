package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/notify"
	"github.com/mr1hm/go-alert-automation/internal/targeting"
	"github.com/mr1hm/go-alert-automation/internal/worker"
)

const defaultRejectReason = "Rejected by operator"

// Dispatch tracks one queued fanout.
type Dispatch struct {
	AlertID int64
	handle  *worker.Handle
	result  *notify.Result
}

// Wait blocks until the fanout finished or ctx is done.
func (d *Dispatch) Wait(ctx context.Context) (notify.Result, error) {
	if err := d.handle.Wait(ctx); err != nil {
		return notify.Result{}, err
	}
	return *d.result, nil
}

type dispatchJob struct {
	alert *models.DisasterAlert
	// resolve targets the general population before delivering. SOS alerts
	// only go to the escalation channels.
	resolve bool
	// logID is the audit entry whose users_notified this fanout fills in;
	// 0 skips the write.
	logID  int64
	result *notify.Result
}

func (s *Service) processDispatch(ctx context.Context, job worker.Job) error {
	j, ok := job.(*dispatchJob)
	if !ok {
		return fmt.Errorf("unexpected job type %T", job)
	}
	defer s.metrics.QueueDepth.Set(float64(s.pool.Len()))
	return s.deliver(ctx, j)
}

func (s *Service) deliver(ctx context.Context, j *dispatchJob) error {
	alert := j.alert
	logger := slog.With("alert_id", alert.ID)

	var recipients []models.Recipient
	if j.resolve {
		res, err := s.resolver.Resolve(ctx, alert, targeting.CategoryFor(alert))
		if err != nil {
			logger.Error("error resolving recipients", "error", err)
			return fmt.Errorf("error resolving recipients for alert %d: %w", alert.ID, err)
		}
		recipients = res.Recipients
	}

	*j.result = s.fanout.Deliver(ctx, alert, recipients)

	if j.logID != 0 {
		if err := s.store.SetUsersNotified(ctx, j.logID, j.result.Notified); err != nil {
			logger.Error("error recording users notified", "log_id", j.logID, "error", err)
		}
	}
	logger.Info("alert dispatched",
		"targeted", j.result.Targeted,
		"notified", j.result.Notified,
		"failed", j.result.Failed,
		"escalations", j.result.Escalations,
	)
	return nil
}

// dispatch hands alert to the queue. When the queue is stopped or ctx ends
// before a slot frees up, the fanout runs inline.
func (s *Service) dispatch(ctx context.Context, alert *models.DisasterAlert, logID int64, resolve bool) *Dispatch {
	j := &dispatchJob{alert: alert, resolve: resolve, logID: logID, result: &notify.Result{}}
	d := &Dispatch{AlertID: alert.ID, result: j.result}

	handle, err := s.pool.Submit(ctx, j)
	if err == nil {
		s.metrics.QueueDepth.Set(float64(s.pool.Len()))
		d.handle = handle
		return d
	}

	slog.Warn("dispatch queue unavailable, delivering inline", "alert_id", alert.ID, "error", err)
	d.handle = worker.Completed(s.deliver(context.WithoutCancel(ctx), j))
	return d
}

// Approve signs off a pending automated alert and queues its fanout. A
// second approval, or approval of a rejected or expired alert, returns
// ErrNotPending.
func (s *Service) Approve(ctx context.Context, alertID, approverID int64) (*Dispatch, error) {
	if _, err := s.store.GetAlert(ctx, alertID); err != nil {
		return nil, err
	}

	ok, err := s.store.ApproveAlert(ctx, alertID, approverID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("error approving alert %d: %w", alertID, err)
	}
	if !ok {
		return nil, fmt.Errorf("alert %d: %w", alertID, ErrNotPending)
	}
	s.metrics.Decisions.WithLabelValues(string(models.LogStatusApproved)).Inc()

	note := fmt.Sprintf("approved by operator %d", approverID)
	logID, err := s.store.AppendLogStatusByAlert(ctx, alertID, models.LogStatusApproved, note)
	if err != nil {
		slog.Error("error updating automation log", "alert_id", alertID, "error", err)
	}

	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	slog.Info("alert approved", "alert_id", alertID, "approver_id", approverID)

	s.publish(alert)
	return s.dispatch(ctx, alert, logID, true), nil
}

// Reject suppresses a pending automated alert. It never notifies anyone.
func (s *Service) Reject(ctx context.Context, alertID, operatorID int64, reason string) error {
	if _, err := s.store.GetAlert(ctx, alertID); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectReason
	}

	ok, err := s.store.RejectAlert(ctx, alertID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("error rejecting alert %d: %w", alertID, err)
	}
	if !ok {
		return fmt.Errorf("alert %d: %w", alertID, ErrNotPending)
	}
	s.metrics.Decisions.WithLabelValues(string(models.LogStatusRejected)).Inc()

	if _, err := s.store.UpdateLogStatusByAlert(ctx, alertID, models.LogStatusRejected, reason); err != nil {
		slog.Error("error updating automation log", "alert_id", alertID, "error", err)
	}
	slog.Info("alert rejected", "alert_id", alertID, "operator_id", operatorID, "reason", reason)
	return nil
}

// CreateManualAlert stores an operator-authored alert. It is active and
// needs no approval; Broadcast sends it.
func (s *Service) CreateManualAlert(ctx context.Context, alert *models.DisasterAlert, operatorID int64) error {
	now := s.clock.Now().UTC()
	alert.Source = models.SourceManual
	alert.IsActive = true
	alert.AutoApproved = true
	alert.CreatedBy = &operatorID
	alert.CreatedAt = now
	alert.ExternalEventID = ""
	if alert.Trigger == nil {
		alert.Trigger = &models.ManualTrigger{OperatorID: operatorID}
	}
	if alert.ExpiresAt == nil {
		expires := now.Add(s.cfg.AlertTTL)
		alert.ExpiresAt = &expires
	}
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}

	if err := s.store.AddAlert(ctx, alert); err != nil {
		return fmt.Errorf("error creating manual alert: %w", err)
	}
	slog.Info("manual alert created", "alert_id", alert.ID, "operator_id", operatorID)
	return nil
}

// Broadcast sends a manual alert to everyone it targets.
func (s *Service) Broadcast(ctx context.Context, alertID, operatorID int64) (*Dispatch, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Source != models.SourceManual {
		return nil, fmt.Errorf("alert %d: %w", alertID, ErrNotManual)
	}
	if !alert.IsActive {
		return nil, fmt.Errorf("alert %d: %w", alertID, ErrInactive)
	}

	preview, err := s.resolver.Resolve(ctx, alert, targeting.CategoryFor(alert))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}

	id := alert.ID
	logID := s.audit(ctx, slog.With("alert_id", id), &models.AutomationLogEntry{
		TriggerType:   models.TriggerTypeManual,
		TriggerData:   encodeTrigger(&models.ManualTrigger{OperatorID: operatorID}),
		AlertID:       &id,
		Status:        models.LogStatusCreated,
		Reason:        fmt.Sprintf("manual broadcast by operator %d", operatorID),
		UsersTargeted: preview.Count,
	})
	slog.Info("manual alert broadcast", "alert_id", id, "operator_id", operatorID, "users_targeted", preview.Count)

	s.publish(alert)
	return s.dispatch(ctx, alert, logID, true), nil
}

// ReportSOS raises an alert around a user in distress. It goes to the
// escalation channels only: emergency services, the user's emergency
// contact, nearby responders and admins.
func (s *Service) ReportSOS(ctx context.Context, userID int64, lat, lon float64, message string) (*models.DisasterAlert, *Dispatch, error) {
	user, err := s.store.GetRecipient(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now().UTC()
	expires := now.Add(s.cfg.AlertTTL)
	radius := s.cfg.SOSRadiusKm
	desc := strings.TrimSpace(message)
	if desc == "" {
		desc = "Emergency assistance requested"
	}

	alert := &models.DisasterAlert{
		Type:         "sos",
		Severity:     models.SeverityCritical,
		Title:        "SOS from " + user.Name,
		Description:  desc,
		Source:       models.SourceSOS,
		Trigger:      &models.SOSTrigger{UserID: userID, Latitude: lat, Longitude: lon, Message: message},
		Latitude:     &lat,
		Longitude:    &lon,
		RadiusKm:     &radius,
		IsActive:     true,
		AutoApproved: true,
		CreatedBy:    &userID,
		ExpiresAt:    &expires,
		CreatedAt:    now,
	}
	if strings.TrimSpace(user.Name) == "" {
		alert.Title = fmt.Sprintf("SOS from user %d", userID)
	}
	if err := alert.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	if err := s.store.AddAlert(ctx, alert); err != nil {
		return nil, nil, fmt.Errorf("error creating sos alert: %w", err)
	}

	id := alert.ID
	logID := s.audit(ctx, slog.With("alert_id", id), &models.AutomationLogEntry{
		TriggerType: models.TriggerTypeSOS,
		TriggerData: encodeTrigger(alert.Trigger),
		AlertID:     &id,
		Status:      models.LogStatusCreated,
		Reason:      fmt.Sprintf("sos reported by user %d", userID),
	})
	slog.Warn("sos reported", "alert_id", id, "user_id", userID, "lat", lat, "lon", lon)

	return alert, s.dispatch(ctx, alert, logID, false), nil
}

func (s *Service) publish(alert *models.DisasterAlert) {
	if s.stream != nil {
		s.stream.Broadcast(alert)
	}
}
