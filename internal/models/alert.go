package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities low < moderate < high < critical. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityModerate:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type AlertSource string

const (
	SourceAutoWeather    AlertSource = "auto_weather"
	SourceAutoEarthquake AlertSource = "auto_earthquake"
	SourceManual         AlertSource = "manual"
	SourceSOS            AlertSource = "sos"
)

// Automated reports whether alerts from this source go through approval.
func (s AlertSource) Automated() bool {
	return s == SourceAutoWeather || s == SourceAutoEarthquake
}

// Trigger is the source specific payload an alert was created from.
type Trigger interface {
	Kind() string
	trigger()
}

type WeatherTrigger struct {
	Location      string  `json:"location"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	WindSpeed     float64 `json:"windSpeed"`
	Precipitation float64 `json:"precipitation"`
	WeatherCode   int     `json:"weatherCode"`
	RuleID        int64   `json:"ruleId"`
}

type EarthquakeTrigger struct {
	EventID   string  `json:"eventId"`
	Magnitude float64 `json:"magnitude"`
	Place     string  `json:"place"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Depth     float64 `json:"depth"`
	Time      int64   `json:"time"`
	RuleID    int64   `json:"ruleId"`
}

type ManualTrigger struct {
	OperatorID int64  `json:"operatorId"`
	Note       string `json:"note,omitempty"`
}

type SOSTrigger struct {
	UserID    int64   `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Message   string  `json:"message,omitempty"`
}

func (*WeatherTrigger) Kind() string    { return "weather" }
func (*EarthquakeTrigger) Kind() string { return "earthquake" }
func (*ManualTrigger) Kind() string     { return "manual" }
func (*SOSTrigger) Kind() string        { return "sos" }

func (*WeatherTrigger) trigger()    {}
func (*EarthquakeTrigger) trigger() {}
func (*ManualTrigger) trigger()     {}
func (*SOSTrigger) trigger()        {}

type triggerEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func EncodeTrigger(t Trigger) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("error encoding trigger: %w", err)
	}
	return json.Marshal(triggerEnvelope{Kind: t.Kind(), Data: data})
}

func DecodeTrigger(b []byte) (Trigger, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var env triggerEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("error decoding trigger envelope: %w", err)
	}

	var t Trigger
	switch env.Kind {
	case "weather":
		t = &WeatherTrigger{}
	case "earthquake":
		t = &EarthquakeTrigger{}
	case "manual":
		t = &ManualTrigger{}
	case "sos":
		t = &SOSTrigger{}
	default:
		return nil, fmt.Errorf("unknown trigger kind: %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, t); err != nil {
		return nil, fmt.Errorf("error decoding %s trigger: %w", env.Kind, err)
	}
	return t, nil
}

type DisasterAlert struct {
	ID              int64
	Type            string
	Severity        Severity
	Title           string
	Description     string
	Source          AlertSource
	Trigger         Trigger
	ExternalEventID string // earthquake alerts only
	AffectedAreas   []string
	Latitude        *float64
	Longitude       *float64
	RadiusKm        *float64
	IsActive        bool
	AutoApproved    bool
	ApprovedBy      *int64
	ApprovedAt      *time.Time
	CreatedBy       *int64
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AreaBased alerts target by city/province, everything else by radius.
func (a *DisasterAlert) AreaBased() bool {
	return len(a.AffectedAreas) > 0
}

func (a *DisasterAlert) RadiusBased() bool {
	return a.Latitude != nil && a.Longitude != nil && a.RadiusKm != nil
}

// Pending reports whether the alert still waits for operator sign-off.
func (a *DisasterAlert) Pending() bool {
	return a.Source.Automated() && a.IsActive && !a.AutoApproved
}

func (a *DisasterAlert) Validate() error {
	if strings.TrimSpace(a.Type) == "" {
		return errors.New("alert type is required")
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("invalid severity: %q", a.Severity)
	}
	if strings.TrimSpace(a.Title) == "" {
		return errors.New("alert title is required")
	}
	if a.Latitude != nil && (*a.Latitude < -90 || *a.Latitude > 90) {
		return fmt.Errorf("latitude out of range: %f", *a.Latitude)
	}
	if a.Longitude != nil && (*a.Longitude < -180 || *a.Longitude > 180) {
		return fmt.Errorf("longitude out of range: %f", *a.Longitude)
	}
	if a.RadiusKm != nil && *a.RadiusKm <= 0 {
		return errors.New("radius must be positive")
	}
	if !a.AreaBased() && !a.RadiusBased() {
		return errors.New("alert needs affected areas or a center point with radius")
	}
	return nil
}
