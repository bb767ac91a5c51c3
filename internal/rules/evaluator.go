package rules

import (
	"cmp"
	"slices"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

// Compiled is an active rule with its conditions decoded.
type Compiled struct {
	Rule       models.ThresholdRule
	Conditions models.Conditions
}

// Malformed describes a rule that was left out of a snapshot.
type Malformed struct {
	RuleID int64
	Name   string
	Err    error
}

// Snapshot is the active rule set of one domain, taken once per tick.
// It is never shared between ticks.
type Snapshot struct {
	ruleType  models.RuleType
	rules     []Compiled
	malformed []Malformed
}

// NewSnapshot keeps the active rules of ruleType ordered by priority desc,
// then id asc. Rules whose conditions cannot be decoded are skipped.
func NewSnapshot(ruleType models.RuleType, all []models.ThresholdRule) *Snapshot {
	s := &Snapshot{ruleType: ruleType}
	for _, r := range all {
		if !r.IsActive || r.Type != ruleType {
			continue
		}
		c, err := models.ParseConditions(r.Conditions)
		if err != nil {
			s.malformed = append(s.malformed, Malformed{RuleID: r.ID, Name: r.Name, Err: err})
			continue
		}
		s.rules = append(s.rules, Compiled{Rule: r, Conditions: c})
	}
	slices.SortStableFunc(s.rules, func(a, b Compiled) int {
		if a.Rule.Priority != b.Rule.Priority {
			return cmp.Compare(b.Rule.Priority, a.Rule.Priority)
		}
		return cmp.Compare(a.Rule.ID, b.Rule.ID)
	})
	return s
}

func (s *Snapshot) Type() models.RuleType { return s.ruleType }

func (s *Snapshot) Len() int { return len(s.rules) }

func (s *Snapshot) Rules() []Compiled { return s.rules }

func (s *Snapshot) Malformed() []Malformed { return s.malformed }

// Match returns the first rule in the snapshot the record satisfies.
func (s *Snapshot) Match(rec models.Record) (*Compiled, bool) {
	if rec == nil || rec.RuleType() != s.ruleType {
		return nil, false
	}
	for i := range s.rules {
		if Matches(s.rules[i].Conditions, rec) {
			return &s.rules[i], true
		}
	}
	return nil, false
}

// Evaluate walks rules in the given order and returns the first one whose
// domain is the record's and whose conditions all hold. A rule whose
// conditions cannot be decoded never matches.
func Evaluate(rec models.Record, rules []models.ThresholdRule) (*models.ThresholdRule, bool) {
	if rec == nil {
		return nil, false
	}
	for i := range rules {
		if rules[i].Type != rec.RuleType() {
			continue
		}
		c, err := models.ParseConditions(rules[i].Conditions)
		if err != nil {
			continue
		}
		if Matches(c, rec) {
			return &rules[i], true
		}
	}
	return nil, false
}

// Matches reports whether every bound present in c holds for rec. Bounds are
// inclusive. A bound on a field the record does not have fails the match.
// radiusKm is a targeting setting, not a bound.
func Matches(c models.Conditions, rec models.Record) bool {
	switch r := rec.(type) {
	case *models.WeatherObservation:
		if c.Magnitude != nil || c.DepthMax != nil {
			return false
		}
		return c.Temperature.Contains(r.Temperature) &&
			c.Precipitation.Contains(r.Precipitation) &&
			c.WindSpeed.Contains(r.WindSpeed) &&
			c.Humidity.Contains(r.Humidity)
	case *models.SeismicEvent:
		if c.Temperature != nil || c.Precipitation != nil || c.WindSpeed != nil || c.Humidity != nil {
			return false
		}
		if c.DepthMax != nil && r.Depth > *c.DepthMax {
			return false
		}
		return c.Magnitude.Contains(r.Magnitude)
	default:
		return false
	}
}
