package notify

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-alert-automation/internal/metrics"
	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

func ptr[T any](v T) *T { return &v }

type fakePush struct {
	mu      sync.Mutex
	batches []PushMessage
	// failing tokens make the whole batch that carries them fail
	failOn map[string]bool
}

func (p *fakePush) SendMulticast(_ context.Context, msg PushMessage) (PushResult, error) {
	p.mu.Lock()
	p.batches = append(p.batches, msg)
	p.mu.Unlock()

	for _, tok := range msg.Tokens {
		if p.failOn[tok] {
			return PushResult{}, errors.New("provider unavailable")
		}
	}
	return PushResult{SuccessCount: len(msg.Tokens)}, nil
}

type fakeSMS struct {
	mu       sync.Mutex
	bodies   []string
	numbers  []string
	statuses map[string]string
	err      error
}

func (s *fakeSMS) Send(_ context.Context, numbers []string, body string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, body)
	s.numbers = append(s.numbers, numbers...)
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string)
	for _, n := range numbers {
		if st, ok := s.statuses[n]; ok {
			out[n] = st
		} else {
			out[n] = "sent"
		}
	}
	return out, nil
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
}

func (e *fakeEmail) Send(_ context.Context, to, _, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, to)
	return nil
}

func setup(t *testing.T) (*repository.SQLiteDB, *models.DisasterAlert) {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	alert := &models.DisasterAlert{
		Type: "earthquake", Severity: models.SeverityCritical, Title: "M6.2 - Batangas",
		Description: "Strong shaking expected", Source: models.SourceAutoEarthquake,
		Latitude: ptr(13.8), Longitude: ptr(121.0), RadiusKm: ptr(100.0), IsActive: true, AutoApproved: true,
	}
	require.NoError(t, db.AddAlert(context.Background(), alert))
	return db, alert
}

func attemptsByStatus(t *testing.T, db *repository.SQLiteDB, alertID int64, kind models.RecipientType) map[int64]models.AttemptStatus {
	t.Helper()
	all, err := db.ListAttempts(context.Background(), alertID)
	require.NoError(t, err)
	out := make(map[int64]models.AttemptStatus)
	for _, a := range all {
		if a.RecipientType == kind && a.RecipientID != nil {
			out[*a.RecipientID] = a.Status
		}
	}
	return out
}

func TestFanout_BatchFailureIsIsolated(t *testing.T) {
	db, alert := setup(t)
	push := &fakePush{failOn: map[string]bool{"tok-3": true}}
	f := NewFanout(Config{BatchSize: 2}, push, &fakeSMS{}, &fakeEmail{}, db, metrics.NewMetricsForTesting())

	recipients := []models.Recipient{
		{ID: 1, Name: "a", DeviceTokens: []string{"tok-1"}},
		{ID: 2, Name: "b", DeviceTokens: []string{"tok-2"}},
		{ID: 3, Name: "c", DeviceTokens: []string{"tok-3"}},
	}
	res := f.Deliver(context.Background(), alert, recipients)

	assert.Equal(t, 3, res.Targeted)
	assert.Equal(t, 2, res.Notified)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, push.batches, 2)
	assert.Equal(t, []string{"tok-1", "tok-2"}, push.batches[0].Tokens)

	got := attemptsByStatus(t, db, alert.ID, models.RecipientUser)
	assert.Equal(t, map[int64]models.AttemptStatus{
		1: models.AttemptSent,
		2: models.AttemptSent,
		3: models.AttemptFailed,
	}, got)
}

func TestFanout_AnySuccessfulBatchMarksRecipientSent(t *testing.T) {
	db, alert := setup(t)
	push := &fakePush{failOn: map[string]bool{"phone": true}}
	f := NewFanout(Config{BatchSize: 1}, push, &fakeSMS{}, &fakeEmail{}, db, nil)

	res := f.Deliver(context.Background(), alert, []models.Recipient{
		{ID: 1, DeviceTokens: []string{"phone", "tablet"}},
	})

	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, models.AttemptSent, attemptsByStatus(t, db, alert.ID, models.RecipientUser)[1])
}

func TestFanout_SMSFallbackAndStatuses(t *testing.T) {
	db, alert := setup(t)
	alert.Description = strings.Repeat("x", 300)
	sms := &fakeSMS{statuses: map[string]string{
		"+630001": "delivered",
		"+630002": "queued",
		"+630003": "undeliverable",
	}}
	f := NewFanout(Config{}, &fakePush{}, sms, &fakeEmail{}, db, nil)

	res := f.Deliver(context.Background(), alert, []models.Recipient{
		{ID: 1, Phone: "+630001"},
		{ID: 2, Phone: "+630002"},
		{ID: 3, Phone: "+630003"},
		{ID: 4},
	})

	assert.Equal(t, 2, res.Notified)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.NoChannel)

	require.Len(t, sms.bodies, 1)
	assert.Len(t, []rune(sms.bodies[0]), 160)
	assert.True(t, strings.HasSuffix(sms.bodies[0], "..."))
	assert.True(t, strings.HasPrefix(sms.bodies[0], "M6.2 - Batangas: "))

	got := attemptsByStatus(t, db, alert.ID, models.RecipientUser)
	assert.Equal(t, models.AttemptDelivered, got[1])
	assert.Equal(t, models.AttemptSent, got[2])
	assert.Equal(t, models.AttemptFailed, got[3])
	assert.NotContains(t, got, int64(4))
}

func TestFanout_SMSGatewayErrorFailsOnlySMS(t *testing.T) {
	db, alert := setup(t)
	f := NewFanout(Config{}, &fakePush{}, &fakeSMS{err: errors.New("gateway timeout")}, &fakeEmail{}, db, nil)

	res := f.Deliver(context.Background(), alert, []models.Recipient{
		{ID: 1, DeviceTokens: []string{"tok-1"}},
		{ID: 2, Phone: "+630002"},
	})
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, 1, res.Failed)
}

func TestFanout_Escalation(t *testing.T) {
	ctx := context.Background()
	db, _ := setup(t)

	subject := &models.Recipient{Name: "Ana", Latitude: ptr(14.60), Longitude: ptr(120.98),
		EmergencyContactName: "Rosa", EmergencyContactPhone: "+639990001"}
	near := &models.Recipient{Name: "near", Role: models.RoleResponder, OnDuty: true,
		Latitude: ptr(14.61), Longitude: ptr(120.98), DeviceTokens: []string{"resp-near"}}
	mid := &models.Recipient{Name: "mid", Role: models.RoleResponder, OnDuty: true,
		Latitude: ptr(14.65), Longitude: ptr(120.98), DeviceTokens: []string{"resp-mid"}}
	farther := &models.Recipient{Name: "farther", Role: models.RoleResponder, OnDuty: true,
		Latitude: ptr(14.70), Longitude: ptr(120.98), DeviceTokens: []string{"resp-farther"}}
	offDuty := &models.Recipient{Name: "off", Role: models.RoleResponder,
		Latitude: ptr(14.60), Longitude: ptr(120.98), DeviceTokens: []string{"resp-off"}}
	remote := &models.Recipient{Name: "cebu", Role: models.RoleResponder, OnDuty: true,
		Latitude: ptr(10.31), Longitude: ptr(123.88), DeviceTokens: []string{"resp-cebu"}}
	admin := &models.Recipient{Name: "ops", Role: models.RoleAdmin, Email: "ops@example.org"}
	for _, r := range []*models.Recipient{subject, near, mid, farther, offDuty, remote, admin} {
		require.NoError(t, db.AddRecipient(ctx, r))
	}

	sos := &models.DisasterAlert{
		Type: "sos", Severity: models.SeverityCritical, Title: "SOS from Ana", Source: models.SourceSOS,
		Latitude: subject.Latitude, Longitude: subject.Longitude, RadiusKm: ptr(5.0),
		IsActive: true, AutoApproved: true, CreatedBy: &subject.ID,
	}
	require.NoError(t, db.AddAlert(ctx, sos))

	push := &fakePush{}
	sms := &fakeSMS{}
	email := &fakeEmail{}
	m := metrics.NewMetricsForTesting()
	f := NewFanout(Config{EscalationRadiusKm: 25, EscalationLimit: 2, EmergencyServiceNumber: "911"}, push, sms, email, db, m)

	res := f.Deliver(ctx, sos, nil)
	// call + contact sms + 2 responders + 1 admin
	assert.Equal(t, 5, res.Escalations)
	assert.Zero(t, res.Targeted)

	assert.Equal(t, []string{"+639990001"}, sms.numbers)
	assert.Equal(t, []string{"ops@example.org"}, email.sent)
	require.Len(t, push.batches, 1)
	assert.Equal(t, []string{"resp-near", "resp-mid"}, push.batches[0].Tokens)

	attempts, err := db.ListAttempts(ctx, sos.ID)
	require.NoError(t, err)
	kinds := make(map[models.RecipientType][]models.NotificationAttempt)
	for _, a := range attempts {
		kinds[a.RecipientType] = append(kinds[a.RecipientType], a)
	}
	require.Len(t, kinds[models.RecipientEmergencyServices], 1)
	assert.Equal(t, models.MethodCall, kinds[models.RecipientEmergencyServices][0].Method)
	assert.Equal(t, models.AttemptPending, kinds[models.RecipientEmergencyServices][0].Status)
	assert.Equal(t, "911", kinds[models.RecipientEmergencyServices][0].RecipientInfo)
	require.Len(t, kinds[models.RecipientEmergencyContact], 1)
	assert.Equal(t, models.AttemptSent, kinds[models.RecipientEmergencyContact][0].Status)
	assert.Len(t, kinds[models.RecipientResponder], 2)
	require.Len(t, kinds[models.RecipientAdmin], 1)
	assert.Equal(t, models.MethodEmail, kinds[models.RecipientAdmin][0].Method)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("call", "pending")))
}

func TestFanout_NoContactEscalationForAutomatedAlerts(t *testing.T) {
	db, alert := setup(t)
	sms := &fakeSMS{}
	f := NewFanout(Config{EscalationRadiusKm: 25, EscalationLimit: 5}, &fakePush{}, sms, &fakeEmail{}, db, nil)

	res := f.Deliver(context.Background(), alert, nil)
	assert.Equal(t, 1, res.Escalations, "only the emergency services call without responders or admins")
	assert.Empty(t, sms.numbers)
}

func TestPushMessage(t *testing.T) {
	alert := &models.DisasterAlert{
		ID: 42, Type: "earthquake", Severity: models.SeverityHigh, Title: "M5.8 - Davao",
		Description: strings.Repeat("é", 250), Source: models.SourceAutoEarthquake,
		Latitude: ptr(7.19), Longitude: ptr(125.45),
	}
	msg := pushMessage(alert)

	assert.Equal(t, "⚠️ M5.8 - Davao", msg.Title)
	assert.Len(t, []rune(msg.Body), 200)
	assert.Equal(t, "42", msg.Data["alert_id"])
	assert.Equal(t, "7.19", msg.Data["latitude"])
	assert.Equal(t, "125.45", msg.Data["longitude"])
	assert.Equal(t, "auto_earthquake", msg.Data["source"])
}

func TestSMSStatus(t *testing.T) {
	tests := map[string]models.AttemptStatus{
		"delivered": models.AttemptDelivered,
		"Sent":      models.AttemptSent,
		"queued":    models.AttemptSent,
		"accepted":  models.AttemptSent,
		"success":   models.AttemptSent,
		"rejected":  models.AttemptFailed,
		"":          models.AttemptFailed,
	}
	for in, want := range tests {
		got, _ := SMSStatus(in)
		assert.Equal(t, want, got, in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, strings.Repeat("a", 160), Truncate(strings.Repeat("a", 160), 160))
	assert.True(t, slices.Equal([]rune("ab"), []rune(Truncate("abcdef", 2))))
}
