package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type RuleType string

const (
	RuleTypeWeather    RuleType = "weather"
	RuleTypeEarthquake RuleType = "earthquake"
)

func (t RuleType) Valid() bool {
	return t == RuleTypeWeather || t == RuleTypeEarthquake
}

// Range is an inclusive numeric bound. A nil side is unconstrained.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *Range) validate(name string) error {
	if r == nil {
		return nil
	}
	if r.Min != nil && !finite(*r.Min) {
		return fmt.Errorf("%s.min is not a finite number", name)
	}
	if r.Max != nil && !finite(*r.Max) {
		return fmt.Errorf("%s.max is not a finite number", name)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%s.min must not exceed %s.max", name, name)
	}
	return nil
}

// Conditions is the single condition object of a threshold rule.
type Conditions struct {
	Temperature   *Range   `json:"temperature,omitempty"`
	Precipitation *Range   `json:"precipitation,omitempty"`
	WindSpeed     *Range   `json:"windSpeed,omitempty"`
	Humidity      *Range   `json:"humidity,omitempty"`
	Magnitude     *Range   `json:"magnitude,omitempty"`
	DepthMax      *float64 `json:"depthMax,omitempty"`
	RadiusKm      *float64 `json:"radiusKm,omitempty"`
}

var ErrMalformedConditions = errors.New("malformed rule conditions")

// ParseConditions strictly decodes a stored condition object.
func ParseConditions(raw json.RawMessage) (Conditions, error) {
	var c Conditions
	if len(bytes.TrimSpace(raw)) == 0 {
		return c, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Conditions{}, fmt.Errorf("%w: %v", ErrMalformedConditions, err)
	}
	if dec.More() {
		return Conditions{}, fmt.Errorf("%w: trailing data", ErrMalformedConditions)
	}
	return c, nil
}

// Validate checks the bounds against the rule type they will be evaluated for.
func (c Conditions) Validate(t RuleType) error {
	ranges := map[string]*Range{
		"temperature":   c.Temperature,
		"precipitation": c.Precipitation,
		"windSpeed":     c.WindSpeed,
		"humidity":      c.Humidity,
		"magnitude":     c.Magnitude,
	}
	for name, r := range ranges {
		if err := r.validate(name); err != nil {
			return err
		}
	}

	switch t {
	case RuleTypeWeather:
		if c.Magnitude != nil || c.DepthMax != nil {
			return errors.New("magnitude and depthMax only apply to earthquake rules")
		}
	case RuleTypeEarthquake:
		if c.Temperature != nil || c.Precipitation != nil || c.WindSpeed != nil || c.Humidity != nil {
			return errors.New("weather bounds only apply to weather rules")
		}
		if c.Magnitude != nil {
			if (c.Magnitude.Min != nil && (*c.Magnitude.Min < 0 || *c.Magnitude.Min > 10)) ||
				(c.Magnitude.Max != nil && (*c.Magnitude.Max < 0 || *c.Magnitude.Max > 10)) {
				return errors.New("magnitude bounds must be between 0 and 10")
			}
		}
	default:
		return fmt.Errorf("unknown rule type: %q", t)
	}

	if c.DepthMax != nil && (!finite(*c.DepthMax) || *c.DepthMax < 0) {
		return errors.New("depthMax must be a non-negative number")
	}
	if c.RadiusKm != nil && (!finite(*c.RadiusKm) || *c.RadiusKm <= 0) {
		return errors.New("radiusKm must be positive")
	}
	return nil
}

// AlertTemplate is copied onto alerts created from a rule. Title and
// Description may reference {location}, {place}, {temperature}, {humidity},
// {windSpeed}, {precipitation}, {magnitude} and {depth}.
type AlertTemplate struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

func (t AlertTemplate) Validate() error {
	if strings.TrimSpace(t.Type) == "" {
		return errors.New("alert template type is required")
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("invalid alert template severity: %q", t.Severity)
	}
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("alert template title is required")
	}
	return nil
}

type ThresholdRule struct {
	ID         int64
	Name       string
	Type       RuleType
	Conditions json.RawMessage
	Template   AlertTemplate
	IsActive   bool
	Priority   int
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *ThresholdRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("rule name is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid rule type: %q", r.Type)
	}
	c, err := ParseConditions(r.Conditions)
	if err != nil {
		return err
	}
	if err := c.Validate(r.Type); err != nil {
		return err
	}
	return r.Template.Validate()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
