package automation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/rules"
)

// materialize builds the pending alert for a matched rule. It does not
// persist anything.
func (s *Service) materialize(match *rules.Compiled, rec models.Record) (*models.DisasterAlert, error) {
	tmpl := match.Rule.Template
	now := s.clock.Now().UTC()
	expires := now.Add(s.cfg.AlertTTL)

	alert := &models.DisasterAlert{
		Type:         tmpl.Type,
		Severity:     tmpl.Severity,
		IsActive:     true,
		AutoApproved: false,
		ExpiresAt:    &expires,
		CreatedAt:    now,
	}
	if match.Rule.CreatedBy != 0 {
		createdBy := match.Rule.CreatedBy
		alert.CreatedBy = &createdBy
	}

	var radius float64
	switch r := rec.(type) {
	case *models.WeatherObservation:
		radius = s.cfg.WeatherRadiusKm
		alert.Source = models.SourceAutoWeather
		alert.AffectedAreas = []string{r.Location}
		alert.Trigger = weatherTrigger(r, match.Rule.ID)
		if alert.Type == "" {
			alert.Type = "weather"
		}
		lat, lon := r.Latitude, r.Longitude
		alert.Latitude, alert.Longitude = &lat, &lon
	case *models.SeismicEvent:
		radius = s.cfg.EarthquakeRadiusKm
		if match.Conditions.RadiusKm != nil {
			radius = *match.Conditions.RadiusKm
		}
		alert.Source = models.SourceAutoEarthquake
		alert.ExternalEventID = r.EventID
		alert.Trigger = earthquakeTrigger(r, match.Rule.ID)
		if alert.Type == "" {
			alert.Type = "earthquake"
		}
		lat, lon := r.Latitude, r.Longitude
		alert.Latitude, alert.Longitude = &lat, &lon
	default:
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
	alert.RadiusKm = &radius

	replacer := placeholders(rec)
	alert.Title = replacer.Replace(tmpl.Title)
	alert.Description = replacer.Replace(tmpl.Description)
	if strings.TrimSpace(alert.Title) == "" {
		alert.Title = defaultTitle(rec)
	}

	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("rule %d produced an invalid alert: %w", match.Rule.ID, err)
	}
	return alert, nil
}

func placeholders(rec models.Record) *strings.Replacer {
	f1 := func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

	switch r := rec.(type) {
	case *models.WeatherObservation:
		return strings.NewReplacer(
			"{location}", r.Location,
			"{place}", r.Location,
			"{temperature}", f1(r.Temperature),
			"{humidity}", strconv.FormatFloat(r.Humidity, 'f', 0, 64),
			"{windSpeed}", f1(r.WindSpeed),
			"{precipitation}", f1(r.Precipitation),
		)
	case *models.SeismicEvent:
		return strings.NewReplacer(
			"{location}", r.Place,
			"{place}", r.Place,
			"{magnitude}", f1(r.Magnitude),
			"{depth}", f1(r.Depth),
		)
	default:
		return strings.NewReplacer()
	}
}

func defaultTitle(rec models.Record) string {
	switch r := rec.(type) {
	case *models.WeatherObservation:
		return "Weather alert for " + r.Location
	case *models.SeismicEvent:
		return fmt.Sprintf("M%.1f earthquake - %s", r.Magnitude, r.Place)
	default:
		return "Disaster alert"
	}
}

func weatherTrigger(r *models.WeatherObservation, ruleID int64) *models.WeatherTrigger {
	return &models.WeatherTrigger{
		Location:      r.Location,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		WindSpeed:     r.WindSpeed,
		Precipitation: r.Precipitation,
		WeatherCode:   r.WeatherCode,
		RuleID:        ruleID,
	}
}

func earthquakeTrigger(r *models.SeismicEvent, ruleID int64) *models.EarthquakeTrigger {
	return &models.EarthquakeTrigger{
		EventID:   r.EventID,
		Magnitude: r.Magnitude,
		Place:     r.Place,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Depth:     r.Depth,
		Time:      r.Time.UnixMilli(),
		RuleID:    ruleID,
	}
}

// triggerFor snapshots a candidate for its audit entry.
func triggerFor(rec models.Record, ruleID int64) models.Trigger {
	switch r := rec.(type) {
	case *models.WeatherObservation:
		return weatherTrigger(r, ruleID)
	case *models.SeismicEvent:
		return earthquakeTrigger(r, ruleID)
	}
	return nil
}

func triggerType(rec models.Record) string {
	if rec.RuleType() == models.RuleTypeEarthquake {
		return models.TriggerTypeEarthquake
	}
	return models.TriggerTypeWeather
}
