package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag   *float64 `json:"mag"`
	Place string   `json:"place"`
	Time  int64    `json:"time"` // unix millis
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// USGS queries the FDSN event service for recent earthquakes inside a
// bounding box.
type USGS struct {
	cfg    config.USGSConfig
	client *http.Client
	clock  clockwork.Clock
}

func NewUSGS(cfg config.USGSConfig, timeout time.Duration, clock clockwork.Clock) *USGS {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &USGS{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		clock: clock,
	}
}

// Events returns the earthquakes at or above the configured magnitude
// within the lookback window.
func (u *USGS) Events(ctx context.Context) ([]*models.SeismicEvent, error) {
	q := url.Values{}
	q.Set("format", "geojson")
	q.Set("orderby", "time")
	q.Set("starttime", u.clock.Now().Add(-u.cfg.Lookback).UTC().Format(time.RFC3339))
	q.Set("minmagnitude", strconv.FormatFloat(u.cfg.MinMagnitude, 'f', -1, 64))
	q.Set("minlatitude", strconv.FormatFloat(u.cfg.MinLatitude, 'f', -1, 64))
	q.Set("maxlatitude", strconv.FormatFloat(u.cfg.MaxLatitude, 'f', -1, 64))
	q.Set("minlongitude", strconv.FormatFloat(u.cfg.MinLongitude, 'f', -1, 64))
	q.Set("maxlongitude", strconv.FormatFloat(u.cfg.MaxLongitude, 'f', -1, 64))

	var data usgsResponse
	if err := getJSON(ctx, u.client, u.cfg.URL+"?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("usgs: %w", err)
	}

	events := make([]*models.SeismicEvent, 0, len(data.Features))
	for _, f := range data.Features {
		if f.ID == "" || f.Properties.Mag == nil || len(f.Geometry.Coordinates) < 3 {
			continue
		}
		events = append(events, &models.SeismicEvent{
			EventID:   f.ID,
			Magnitude: *f.Properties.Mag,
			Place:     f.Properties.Place,
			Longitude: f.Geometry.Coordinates[0],
			Latitude:  f.Geometry.Coordinates[1],
			Depth:     f.Geometry.Coordinates[2],
			Time:      time.UnixMilli(f.Properties.Time).UTC(),
		})
	}

	return events, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
