package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

func rule(id int64, priority int, t models.RuleType, cond string) models.ThresholdRule {
	return models.ThresholdRule{
		ID:         id,
		Name:       "rule",
		Type:       t,
		Conditions: json.RawMessage(cond),
		IsActive:   true,
		Priority:   priority,
	}
}

func quake(mag, depth float64) *models.SeismicEvent {
	return &models.SeismicEvent{EventID: "usgs123", Magnitude: mag, Place: "Batangas", Latitude: 13.8, Longitude: 121.0, Depth: depth}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		cond string
		rec  models.Record
		want bool
	}{
		{"empty conditions match", `{}`, quake(3, 10), true},
		{"magnitude min inclusive", `{"magnitude":{"min":5}}`, quake(5, 10), true},
		{"magnitude below min", `{"magnitude":{"min":5}}`, quake(4.9, 10), false},
		{"magnitude max inclusive", `{"magnitude":{"min":5,"max":6}}`, quake(6, 10), true},
		{"magnitude above max", `{"magnitude":{"min":5,"max":6}}`, quake(6.1, 10), false},
		{"depth within max", `{"depthMax":70}`, quake(6, 70), true},
		{"depth beyond max", `{"depthMax":70}`, quake(6, 71), false},
		{"radius is not a bound", `{"radiusKm":100}`, quake(1, 10), true},
		{"weather bound on quake", `{"temperature":{"min":30}}`, quake(6, 10), false},
		{"temperature range", `{"temperature":{"min":35,"max":45}}`, &models.WeatherObservation{Temperature: 38}, true},
		{"precipitation min only", `{"precipitation":{"min":50}}`, &models.WeatherObservation{Precipitation: 49.9}, false},
		{"all weather bounds", `{"windSpeed":{"min":60},"humidity":{"max":100},"precipitation":{"min":20}}`,
			&models.WeatherObservation{WindSpeed: 60, Humidity: 90, Precipitation: 25}, true},
		{"magnitude bound on weather", `{"magnitude":{"min":1}}`, &models.WeatherObservation{Temperature: 38}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := models.ParseConditions(json.RawMessage(tt.cond))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Matches(c, tt.rec))
		})
	}
}

func TestEvaluate_FirstMatchInOrder(t *testing.T) {
	rules := []models.ThresholdRule{
		rule(1, 10, models.RuleTypeWeather, `{"temperature":{"min":30}}`),
		rule(2, 5, models.RuleTypeEarthquake, `{"magnitude":{"min":7}}`),
		rule(3, 4, models.RuleTypeEarthquake, `{"magnitude":{"min":5}}`),
		rule(4, 1, models.RuleTypeEarthquake, `{}`),
	}

	got, ok := Evaluate(quake(6.2, 10), rules)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.ID)

	_, ok = Evaluate(quake(6.2, 10), rules[:2])
	assert.False(t, ok)
}

func TestEvaluate_MalformedRuleDoesNotAbort(t *testing.T) {
	rules := []models.ThresholdRule{
		rule(1, 10, models.RuleTypeEarthquake, `{"magnitude":`),
		rule(2, 9, models.RuleTypeEarthquake, `{"magnitude":{"min":"high"}}`),
		rule(3, 8, models.RuleTypeEarthquake, `{"shaking":true}`),
		rule(4, 1, models.RuleTypeEarthquake, `{"magnitude":{"min":5}}`),
	}

	got, ok := Evaluate(quake(6.2, 10), rules)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ID)
}

func TestNewSnapshot_OrdersByPriorityThenID(t *testing.T) {
	inactive := rule(1, 100, models.RuleTypeEarthquake, `{}`)
	inactive.IsActive = false
	all := []models.ThresholdRule{
		rule(7, 5, models.RuleTypeEarthquake, `{"magnitude":{"min":5}}`),
		rule(3, 5, models.RuleTypeEarthquake, `{"magnitude":{"min":5}}`),
		rule(9, 1, models.RuleTypeEarthquake, `{}`),
		rule(2, 50, models.RuleTypeWeather, `{}`),
		rule(5, 20, models.RuleTypeEarthquake, `not json`),
		inactive,
	}

	snap := NewSnapshot(models.RuleTypeEarthquake, all)
	require.Equal(t, 3, snap.Len())

	var ids []int64
	for _, c := range snap.Rules() {
		ids = append(ids, c.Rule.ID)
	}
	assert.Equal(t, []int64{3, 7, 9}, ids)

	require.Len(t, snap.Malformed(), 1)
	assert.Equal(t, int64(5), snap.Malformed()[0].RuleID)
	assert.ErrorIs(t, snap.Malformed()[0].Err, models.ErrMalformedConditions)

	// Equal priority: the lower id wins.
	got, ok := snap.Match(quake(6.2, 10))
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Rule.ID)

	// Below every bound except the catch-all.
	got, ok = snap.Match(quake(2, 10))
	require.True(t, ok)
	assert.Equal(t, int64(9), got.Rule.ID)
}

func TestSnapshot_IgnoresOtherDomain(t *testing.T) {
	snap := NewSnapshot(models.RuleTypeWeather, []models.ThresholdRule{
		rule(1, 1, models.RuleTypeWeather, `{}`),
	})
	_, ok := snap.Match(quake(6, 10))
	assert.False(t, ok)

	got, ok := snap.Match(&models.WeatherObservation{Location: "Manila"})
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Rule.ID)
}
