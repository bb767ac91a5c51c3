package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

const DefaultWindow = 60 * time.Minute

// AlertLookup is the part of the alert store the guard reads.
type AlertLookup interface {
	RecentAreaAlertExists(ctx context.Context, source models.AlertSource, area string, since time.Time) (bool, error)
	EventAlertExists(ctx context.Context, source models.AlertSource, eventID string) (bool, error)
}

// Guard checks whether an equivalent automated alert already exists. The
// check is advisory: two concurrent ticks can both see no duplicate.
type Guard struct {
	alerts AlertLookup
	clock  clockwork.Clock
	window time.Duration
}

func NewGuard(alerts AlertLookup, clock clockwork.Clock, window time.Duration) *Guard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Guard{alerts: alerts, clock: clock, window: window}
}

// IsDuplicate reports whether rec already produced an alert, with the reason
// to put on the skipped log entry.
func (g *Guard) IsDuplicate(ctx context.Context, rec models.Record) (bool, string, error) {
	switch r := rec.(type) {
	case *models.WeatherObservation:
		since := g.clock.Now().Add(-g.window)
		exists, err := g.alerts.RecentAreaAlertExists(ctx, models.SourceAutoWeather, r.Location, since)
		if err != nil {
			return false, "", fmt.Errorf("error checking weather duplicates for %s: %w", r.Location, err)
		}
		if exists {
			return true, fmt.Sprintf("active weather alert for %s created within the last %s", r.Location, g.window), nil
		}
		return false, "", nil
	case *models.SeismicEvent:
		exists, err := g.alerts.EventAlertExists(ctx, models.SourceAutoEarthquake, r.EventID)
		if err != nil {
			return false, "", fmt.Errorf("error checking earthquake duplicates for %s: %w", r.EventID, err)
		}
		if exists {
			return true, fmt.Sprintf("alert already exists for earthquake event %s", r.EventID), nil
		}
		return false, "", nil
	default:
		return false, "", fmt.Errorf("unsupported record type %T", rec)
	}
}

func (g *Guard) Window() time.Duration { return g.window }
