package notify

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/metrics"
	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
	"github.com/mr1hm/go-alert-automation/internal/targeting"
)

const (
	DefaultBatchSize = 500
	pushBodyLimit    = 200
	smsLimit         = 160
)

// Store is what the fanout reads and writes.
type Store interface {
	AddAttempts(ctx context.Context, attempts []*models.NotificationAttempt) error
	UpdateAttemptStatus(ctx context.Context, id int64, status models.AttemptStatus, detail string) error
	GetRecipient(ctx context.Context, id int64) (*models.Recipient, error)
	ListRecipients(ctx context.Context, opts repository.RecipientFilter) ([]models.Recipient, error)
}

type Config struct {
	BatchSize              int
	EscalationRadiusKm     float64
	EscalationLimit        int
	EmergencyServiceNumber string
}

// Result aggregates one fanout. Notified and Failed count targeted
// recipients only; escalations are reported separately.
type Result struct {
	Targeted    int
	Notified    int
	Failed      int
	NoChannel   int
	Escalations int
}

// Fanout delivers an alert to its recipients and records one attempt per
// recipient per channel.
type Fanout struct {
	cfg     Config
	push    PushSender
	sms     SMSSender
	email   EmailSender
	store   Store
	metrics *metrics.Metrics
}

func NewFanout(cfg Config, push PushSender, sms SMSSender, email EmailSender, store Store, m *metrics.Metrics) *Fanout {
	if cfg.BatchSize <= 0 || cfg.BatchSize > DefaultBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if push == nil {
		push = LogPush{}
	}
	if sms == nil {
		sms = LogSMS{}
	}
	if email == nil {
		email = LogEmail{}
	}
	if m == nil {
		m = metrics.NewMetricsForTesting()
	}
	return &Fanout{cfg: cfg, push: push, sms: sms, email: email, store: store, metrics: m}
}

// target is one addressee on one channel.
type target struct {
	kind   models.RecipientType
	id     *int64
	info   string
	phone  string
	tokens []string
}

func userTarget(r models.Recipient, kind models.RecipientType) target {
	id := r.ID
	return target{kind: kind, id: &id, info: r.Name, phone: r.Phone, tokens: r.DeviceTokens}
}

// Deliver sends alert to recipients by push, falling back to SMS for those
// without a device, then runs the escalation channels. Failures stay with the
// batch or recipient they happened to.
func (f *Fanout) Deliver(ctx context.Context, alert *models.DisasterAlert, recipients []models.Recipient) Result {
	res := Result{Targeted: len(recipients)}

	var pushGroup, smsGroup []target
	for _, r := range recipients {
		switch {
		case len(r.DeviceTokens) > 0:
			pushGroup = append(pushGroup, userTarget(r, models.RecipientUser))
		case r.Phone != "":
			smsGroup = append(smsGroup, userTarget(r, models.RecipientUser))
		default:
			res.NoChannel++
		}
	}

	statuses := f.sendPush(ctx, alert, pushGroup)
	statuses = append(statuses, f.sendSMS(ctx, alert, smsGroup)...)
	for _, s := range statuses {
		if s == models.AttemptSent || s == models.AttemptDelivered {
			res.Notified++
		} else {
			res.Failed++
		}
	}

	res.Escalations = f.escalate(ctx, alert)

	slog.Info("fanout complete",
		"alert_id", alert.ID,
		"targeted", res.Targeted,
		"notified", res.Notified,
		"failed", res.Failed,
		"no_channel", res.NoChannel,
		"escalations", res.Escalations,
	)
	return res
}

func (f *Fanout) sendPush(ctx context.Context, alert *models.DisasterAlert, group []target) []models.AttemptStatus {
	if len(group) == 0 {
		return nil
	}

	attempts := make([]*models.NotificationAttempt, len(group))
	for i, t := range group {
		attempts[i] = newAttempt(alert.ID, t, models.MethodPush)
	}
	f.record(ctx, attempts)

	type tokenRef struct {
		token string
		owner int
	}
	var refs []tokenRef
	for i, t := range group {
		for _, tok := range t.tokens {
			refs = append(refs, tokenRef{token: tok, owner: i})
		}
	}

	sent := make([]bool, len(group))
	details := make([][]string, len(group))
	base := pushMessage(alert)

	for start := 0; start < len(refs); start += f.cfg.BatchSize {
		batch := refs[start:min(start+f.cfg.BatchSize, len(refs))]
		msg := base
		msg.Tokens = make([]string, len(batch))
		for i, ref := range batch {
			msg.Tokens[i] = ref.token
		}

		out, err := f.push.SendMulticast(ctx, msg)
		if err != nil {
			slog.Warn("push batch failed", "alert_id", alert.ID, "tokens", len(batch), "error", err)
			f.metrics.PushBatches.WithLabelValues("failed").Inc()
			for _, ref := range batch {
				details[ref.owner] = append(details[ref.owner], err.Error())
			}
			continue
		}

		if out.SuccessCount > 0 {
			f.metrics.PushBatches.WithLabelValues("ok").Inc()
			for _, ref := range batch {
				sent[ref.owner] = true
			}
		} else {
			f.metrics.PushBatches.WithLabelValues("failed").Inc()
		}
		for _, ref := range batch {
			if e, ok := out.Errors[ref.token]; ok && e != "" {
				details[ref.owner] = append(details[ref.owner], e)
			}
		}
	}

	statuses := make([]models.AttemptStatus, len(group))
	for i, a := range attempts {
		status, detail := models.AttemptFailed, strings.Join(slices.Compact(details[i]), "; ")
		if sent[i] {
			status = models.AttemptSent
		} else if detail == "" {
			detail = "no batch reported a success"
			if len(group[i].tokens) == 0 {
				detail = "no registered device"
			}
		}
		f.finish(ctx, a, status, detail)
		statuses[i] = status
	}
	return statuses
}

func (f *Fanout) sendSMS(ctx context.Context, alert *models.DisasterAlert, group []target) []models.AttemptStatus {
	if len(group) == 0 {
		return nil
	}

	attempts := make([]*models.NotificationAttempt, len(group))
	numbers := make([]string, len(group))
	for i, t := range group {
		attempts[i] = newAttempt(alert.ID, t, models.MethodSMS)
		numbers[i] = t.phone
	}
	f.record(ctx, attempts)

	reported, err := f.sms.Send(ctx, numbers, smsBody(alert))
	if err != nil {
		slog.Warn("sms send failed", "alert_id", alert.ID, "numbers", len(numbers), "error", err)
	}

	statuses := make([]models.AttemptStatus, len(group))
	for i, a := range attempts {
		var status models.AttemptStatus
		var detail string
		if err != nil {
			status, detail = models.AttemptFailed, err.Error()
		} else {
			status, detail = SMSStatus(reported[numbers[i]])
		}
		f.finish(ctx, a, status, detail)
		statuses[i] = status
	}
	return statuses
}

// SMSStatus maps a gateway status string onto an attempt outcome.
func SMSStatus(s string) (models.AttemptStatus, string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delivered":
		return models.AttemptDelivered, ""
	case "sent", "queued", "accepted", "success":
		return models.AttemptSent, ""
	case "":
		return models.AttemptFailed, "no status reported"
	default:
		return models.AttemptFailed, s
	}
}

// escalate runs the side channels and returns how many attempts it made.
func (f *Fanout) escalate(ctx context.Context, alert *models.DisasterAlert) int {
	n := 0

	// The dispatcher places the call; the attempt stays pending until then.
	call := newAttempt(alert.ID, target{kind: models.RecipientEmergencyServices, info: f.cfg.EmergencyServiceNumber}, models.MethodCall)
	call.Detail = "awaiting dispatcher"
	f.record(ctx, []*models.NotificationAttempt{call})
	f.metrics.Notifications.WithLabelValues(string(models.MethodCall), string(models.AttemptPending)).Inc()
	slog.Warn("emergency services escalation", "alert_id", alert.ID, "number", f.cfg.EmergencyServiceNumber,
		"severity", alert.Severity, "title", alert.Title)
	n++

	if contact, ok := f.emergencyContact(ctx, alert); ok {
		n += len(f.sendSMS(ctx, alert, []target{contact}))
	}

	n += len(f.sendPush(ctx, alert, f.nearbyResponders(ctx, alert)))
	n += f.emailAdmins(ctx, alert)
	return n
}

func (f *Fanout) emergencyContact(ctx context.Context, alert *models.DisasterAlert) (target, bool) {
	if alert.Source != models.SourceSOS || alert.CreatedBy == nil {
		return target{}, false
	}
	subject, err := f.store.GetRecipient(ctx, *alert.CreatedBy)
	if err != nil {
		slog.Error("error loading alert subject", "alert_id", alert.ID, "user_id", *alert.CreatedBy, "error", err)
		return target{}, false
	}
	if subject.EmergencyContactPhone == "" {
		return target{}, false
	}
	id := subject.ID
	return target{
		kind:  models.RecipientEmergencyContact,
		id:    &id,
		info:  strings.TrimSpace(subject.EmergencyContactName + " " + subject.EmergencyContactPhone),
		phone: subject.EmergencyContactPhone,
	}, true
}

func (f *Fanout) nearbyResponders(ctx context.Context, alert *models.DisasterAlert) []target {
	if f.cfg.EscalationLimit <= 0 || alert.Latitude == nil || alert.Longitude == nil {
		return nil
	}

	role := models.RoleResponder
	responders, err := f.store.ListRecipients(ctx, repository.RecipientFilter{Role: &role, OnDutyOnly: true})
	if err != nil {
		slog.Error("error loading responders", "alert_id", alert.ID, "error", err)
		return nil
	}

	type ranked struct {
		r    models.Recipient
		dist float64
	}
	var nearby []ranked
	for _, r := range responders {
		if !r.HasCoordinates() {
			continue
		}
		d := targeting.Distance(*alert.Latitude, *alert.Longitude, *r.Latitude, *r.Longitude)
		if d <= f.cfg.EscalationRadiusKm {
			nearby = append(nearby, ranked{r: r, dist: d})
		}
	}
	slices.SortStableFunc(nearby, func(a, b ranked) int { return cmp.Compare(a.dist, b.dist) })
	if len(nearby) > f.cfg.EscalationLimit {
		nearby = nearby[:f.cfg.EscalationLimit]
	}

	out := make([]target, len(nearby))
	for i, n := range nearby {
		out[i] = userTarget(n.r, models.RecipientResponder)
	}
	return out
}

func (f *Fanout) emailAdmins(ctx context.Context, alert *models.DisasterAlert) int {
	role := models.RoleAdmin
	admins, err := f.store.ListRecipients(ctx, repository.RecipientFilter{Role: &role})
	if err != nil {
		slog.Error("error loading admins", "alert_id", alert.ID, "error", err)
		return 0
	}

	var (
		attempts []*models.NotificationAttempt
		emails   []string
	)
	for _, a := range admins {
		if a.Email == "" {
			continue
		}
		id := a.ID
		attempts = append(attempts, newAttempt(alert.ID, target{kind: models.RecipientAdmin, id: &id, info: a.Email}, models.MethodEmail))
		emails = append(emails, a.Email)
	}
	if len(attempts) == 0 {
		return 0
	}
	f.record(ctx, attempts)

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	body := fmt.Sprintf("%s\n\nAlert ID: %d\nSource: %s", alert.Description, alert.ID, alert.Source)
	for i, a := range attempts {
		if err := f.email.Send(ctx, emails[i], subject, body); err != nil {
			f.finish(ctx, a, models.AttemptFailed, err.Error())
			continue
		}
		f.finish(ctx, a, models.AttemptSent, "")
	}
	return len(attempts)
}

func newAttempt(alertID int64, t target, method models.DeliveryMethod) *models.NotificationAttempt {
	return &models.NotificationAttempt{
		AlertID:       alertID,
		RecipientType: t.kind,
		RecipientID:   t.id,
		RecipientInfo: t.info,
		Method:        method,
		Status:        models.AttemptPending,
	}
}

// record writes attempts as pending. A failed write is logged and the send
// goes ahead without a row to update.
func (f *Fanout) record(ctx context.Context, attempts []*models.NotificationAttempt) {
	if err := f.store.AddAttempts(ctx, attempts); err != nil {
		slog.Error("error recording notification attempts", "alert_id", attempts[0].AlertID,
			"count", len(attempts), "error", err)
	}
}

func (f *Fanout) finish(ctx context.Context, a *models.NotificationAttempt, status models.AttemptStatus, detail string) {
	a.Status = status
	a.Detail = detail
	f.metrics.Notifications.WithLabelValues(string(a.Method), string(status)).Inc()
	if a.ID == 0 {
		return
	}
	if err := f.store.UpdateAttemptStatus(ctx, a.ID, status, detail); err != nil {
		slog.Error("error updating notification attempt", "attempt_id", a.ID, "status", status, "error", err)
	}
}

var severityIndicator = map[models.Severity]string{
	models.SeverityCritical: "🚨",
	models.SeverityHigh:     "⚠️",
	models.SeverityModerate: "🔶",
	models.SeverityLow:      "ℹ️",
}

func pushMessage(alert *models.DisasterAlert) PushMessage {
	title := alert.Title
	if ind, ok := severityIndicator[alert.Severity]; ok {
		title = ind + " " + title
	}
	body := alert.Description
	if body == "" {
		body = alert.Title
	}

	data := map[string]string{
		"alert_id": strconv.FormatInt(alert.ID, 10),
		"type":     alert.Type,
		"severity": string(alert.Severity),
		"source":   string(alert.Source),
	}
	if alert.Latitude != nil && alert.Longitude != nil {
		data["latitude"] = strconv.FormatFloat(*alert.Latitude, 'f', -1, 64)
		data["longitude"] = strconv.FormatFloat(*alert.Longitude, 'f', -1, 64)
	}

	return PushMessage{Title: title, Body: Truncate(body, pushBodyLimit), Data: data}
}

func smsBody(alert *models.DisasterAlert) string {
	text := alert.Title
	if alert.Description != "" {
		text += ": " + alert.Description
	}
	return Truncate(text, smsLimit)
}

// Truncate cuts s to at most limit runes, ending in "..." when cut.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
