package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

func setupStore(t *testing.T) *repository.SQLiteDB {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGuard_WeatherWindow(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	guard := NewGuard(store, clock, 0)
	obs := &models.WeatherObservation{Location: "Manila", Temperature: 39}

	dup, _, err := guard.IsDuplicate(ctx, obs)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, store.AddAlert(ctx, &models.DisasterAlert{
		Type: "heat", Severity: models.SeverityHigh, Title: "Extreme heat in Manila",
		Source: models.SourceAutoWeather, AffectedAreas: []string{"Manila"},
		IsActive: true, CreatedAt: start,
	}))

	clock.Advance(60 * time.Minute)
	dup, reason, err := guard.IsDuplicate(ctx, obs)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Contains(t, reason, "Manila")

	clock.Advance(time.Minute)
	dup, _, err = guard.IsDuplicate(ctx, obs)
	require.NoError(t, err)
	assert.False(t, dup, "61 minutes later a new alert may be created")

	dup, _, err = guard.IsDuplicate(ctx, &models.WeatherObservation{Location: "Cebu City"})
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestGuard_EarthquakeHasNoWindow(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	guard := NewGuard(store, clock, time.Hour)
	event := &models.SeismicEvent{EventID: "usgs123", Magnitude: 6.2}

	lat, lon, radius := 13.8, 121.0, 100.0
	require.NoError(t, store.AddAlert(ctx, &models.DisasterAlert{
		Type: "earthquake", Severity: models.SeverityHigh, Title: "M6.2 Batangas",
		Source: models.SourceAutoEarthquake, ExternalEventID: "usgs123",
		Latitude: &lat, Longitude: &lon, RadiusKm: &radius,
		IsActive: false, CreatedAt: clock.Now(),
	}))

	clock.Advance(365 * 24 * time.Hour)
	dup, reason, err := guard.IsDuplicate(ctx, event)
	require.NoError(t, err)
	assert.True(t, dup, "an inactive alert a year old still covers the event")
	assert.Contains(t, reason, "usgs123")

	dup, _, err = guard.IsDuplicate(ctx, &models.SeismicEvent{EventID: "usgs124"})
	require.NoError(t, err)
	assert.False(t, dup)
}

type failingLookup struct{}

func (failingLookup) RecentAreaAlertExists(context.Context, models.AlertSource, string, time.Time) (bool, error) {
	return false, errors.New("db locked")
}

func (failingLookup) EventAlertExists(context.Context, models.AlertSource, string) (bool, error) {
	return false, errors.New("db locked")
}

func TestGuard_StoreErrorIsReturned(t *testing.T) {
	guard := NewGuard(failingLookup{}, clockwork.NewFakeClock(), time.Hour)

	_, _, err := guard.IsDuplicate(context.Background(), &models.WeatherObservation{Location: "Davao"})
	assert.ErrorContains(t, err, "db locked")

	_, _, err = guard.IsDuplicate(context.Background(), &models.SeismicEvent{EventID: "x"})
	assert.ErrorContains(t, err, "db locked")

	assert.Equal(t, time.Hour, guard.Window())
}
