package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
	"github.com/mr1hm/go-alert-automation/internal/rules"
	"github.com/mr1hm/go-alert-automation/internal/targeting"
)

// CycleReport summarizes one monitoring tick.
type CycleReport struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Expired    int64         `json:"expired"`
	Candidates int           `json:"candidates"`
	Created    int           `json:"created"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Malformed  int           `json:"malformed_rules"`
}

func (r *CycleReport) add(status models.LogStatus) {
	r.Candidates++
	switch status {
	case models.LogStatusCreated:
		r.Created++
	case models.LogStatusSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// RunCycle runs one tick: expiry sweep, then the weather and earthquake
// sub-cycles. Failures are logged and audited, never returned.
func (s *Service) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: s.clock.Now().UTC(),
	}
	logger := slog.With("cycle_id", report.CycleID)
	logger.Info("monitoring cycle started")
	s.metrics.CyclesTotal.Inc()

	expired, err := s.store.DeactivateExpired(ctx, s.clock.Now())
	if err != nil {
		logger.Error("error deactivating expired alerts", "error", err)
	} else if expired > 0 {
		report.Expired = expired
		s.metrics.AlertsExpired.Add(float64(expired))
		logger.Info("deactivated expired alerts", "count", expired)
	}

	if s.weather != nil {
		s.runDomain(ctx, logger, models.RuleTypeWeather, &report, s.fetchWeather)
	}
	if s.quakes != nil {
		s.runDomain(ctx, logger, models.RuleTypeEarthquake, &report, s.fetchEarthquakes)
	}

	report.Duration = s.clock.Since(report.StartedAt)
	s.metrics.CycleDuration.Observe(report.Duration.Seconds())
	logger.Info("monitoring cycle complete",
		"candidates", report.Candidates,
		"created", report.Created,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"duration", report.Duration,
	)
	return report
}

type fetchFunc func(ctx context.Context) ([]models.Record, error)

func (s *Service) fetchWeather(ctx context.Context) ([]models.Record, error) {
	obs, err := s.weather.Observations(ctx)
	records := make([]models.Record, len(obs))
	for i, o := range obs {
		records[i] = o
	}
	return records, err
}

func (s *Service) fetchEarthquakes(ctx context.Context) ([]models.Record, error) {
	events, err := s.quakes.Events(ctx)
	records := make([]models.Record, len(events))
	for i, e := range events {
		records[i] = e
	}
	return records, err
}

func (s *Service) runDomain(ctx context.Context, logger *slog.Logger, domain models.RuleType, report *CycleReport, fetch fetchFunc) {
	logger = logger.With("domain", domain)
	trigger := string(domain)

	all, err := s.store.ListRules(ctx, repository.RuleFilter{Type: &domain, ActiveOnly: true})
	if err != nil {
		logger.Error("error loading rules", "error", err)
		s.audit(ctx, logger, &models.AutomationLogEntry{
			TriggerType: trigger,
			Status:      models.LogStatusError,
			Reason:      fmt.Sprintf("failed to load %s rules: %v", domain, err),
		})
		report.add(models.LogStatusError)
		return
	}
	snap := rules.NewSnapshot(domain, all)
	for _, m := range snap.Malformed() {
		logger.Warn("skipping rule with malformed conditions", "rule_id", m.RuleID, "rule", m.Name, "error", m.Err)
		s.metrics.RulesSkipped.Inc()
	}
	report.Malformed += len(snap.Malformed())

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	records, err := fetch(fetchCtx)
	cancel()
	if err != nil {
		logger.Error("error fetching environmental data", "error", err, "records", len(records))
		s.metrics.FetchErrors.WithLabelValues(sourceLabel(domain)).Inc()
		s.audit(ctx, logger, &models.AutomationLogEntry{
			TriggerType: trigger,
			Status:      models.LogStatusError,
			Reason:      fmt.Sprintf("%s data source unavailable: %v", domain, err),
		})
		report.add(models.LogStatusError)
	}
	if len(records) == 0 {
		return
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, rec := range records {
		g.Go(func() error {
			status := s.processCandidate(ctx, logger, snap, rec)
			s.metrics.Candidates.WithLabelValues(trigger, string(status)).Inc()
			mu.Lock()
			report.add(status)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
}

// processCandidate takes one record through match, dedup, materialize and
// preview targeting. It writes exactly one audit entry and returns its
// status.
func (s *Service) processCandidate(ctx context.Context, logger *slog.Logger, snap *rules.Snapshot, rec models.Record) models.LogStatus {
	entry := &models.AutomationLogEntry{TriggerType: triggerType(rec)}

	match, ok := snap.Match(rec)
	if !ok {
		entry.TriggerData = encodeTrigger(triggerFor(rec, 0))
		entry.Status = models.LogStatusSkipped
		entry.Reason = "no matching rule"
		s.audit(ctx, logger, entry)
		return entry.Status
	}

	ruleID, ruleName := match.Rule.ID, match.Rule.Name
	entry.RuleID, entry.RuleName = &ruleID, &ruleName
	entry.TriggerData = encodeTrigger(triggerFor(rec, ruleID))
	logger = logger.With("rule_id", ruleID)

	dup, reason, err := s.guard.IsDuplicate(ctx, rec)
	if err != nil {
		entry.Status = models.LogStatusError
		entry.Reason = fmt.Sprintf("duplicate check failed: %v", err)
		s.audit(ctx, logger, entry)
		return entry.Status
	}
	if dup {
		entry.Status = models.LogStatusSkipped
		entry.Reason = reason
		s.audit(ctx, logger, entry)
		return entry.Status
	}

	alert, err := s.materialize(match, rec)
	if err == nil {
		err = s.store.AddAlert(ctx, alert)
	}
	if errors.Is(err, repository.ErrDuplicate) {
		entry.Status = models.LogStatusSkipped
		entry.Reason = fmt.Sprintf("alert already exists for earthquake event %s", alert.ExternalEventID)
		s.audit(ctx, logger, entry)
		return entry.Status
	}
	if err != nil {
		logger.Error("error creating alert", "error", err)
		entry.Status = models.LogStatusError
		entry.Reason = fmt.Sprintf("failed to create alert: %v", err)
		s.audit(ctx, logger, entry)
		return entry.Status
	}

	preview, err := s.resolver.Resolve(ctx, alert, targeting.CategoryFor(alert))
	if err != nil {
		logger.Warn("error computing target preview", "alert_id", alert.ID, "error", err)
	}

	alertID := alert.ID
	entry.AlertID = &alertID
	entry.Status = models.LogStatusCreated
	entry.Reason = fmt.Sprintf("rule %q matched; awaiting approval", ruleName)
	entry.UsersTargeted = preview.Count
	s.audit(ctx, logger, entry)
	logger.Info("alert created", "alert_id", alert.ID, "title", alert.Title, "users_targeted", preview.Count)
	return entry.Status
}

// audit appends entry and returns its id, or 0 when the write failed.
func (s *Service) audit(ctx context.Context, logger *slog.Logger, entry *models.AutomationLogEntry) int64 {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}
	if err := s.store.AddLog(ctx, entry); err != nil {
		logger.Error("error writing automation log", "status", entry.Status, "reason", entry.Reason, "error", err)
		return 0
	}
	return entry.ID
}

func sourceLabel(domain models.RuleType) string {
	if domain == models.RuleTypeEarthquake {
		return "usgs"
	}
	return "weather"
}

func encodeTrigger(t models.Trigger) []byte {
	b, err := models.EncodeTrigger(t)
	if err != nil {
		return nil
	}
	return b
}
