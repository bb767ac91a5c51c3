package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/models"
)

const maxParallelLocations = 4

type openMeteoResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		Humidity      float64 `json:"relative_humidity_2m"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Precipitation float64 `json:"precipitation"`
		WeatherCode   int     `json:"weather_code"`
	} `json:"current"`
}

// OpenMeteo fetches current conditions for the monitored locations.
type OpenMeteo struct {
	baseURL   string
	locations []config.Location
	client    *http.Client
}

func NewOpenMeteo(cfg config.WeatherConfig, timeout time.Duration) *OpenMeteo {
	return &OpenMeteo{
		baseURL:   cfg.URL,
		locations: cfg.Locations,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Observations returns one observation per location that answered. Failed
// locations are joined into the returned error next to the partial result.
func (o *OpenMeteo) Observations(ctx context.Context) ([]*models.WeatherObservation, error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	out := make([]*models.WeatherObservation, len(o.locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLocations)
	for i, loc := range o.locations {
		g.Go(func() error {
			obs, err := o.fetch(gctx, loc)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("open-meteo %s: %w", loc.Name, err))
				mu.Unlock()
				return nil
			}
			out[i] = obs
			return nil
		})
	}
	g.Wait()

	observations := make([]*models.WeatherObservation, 0, len(out))
	for _, obs := range out {
		if obs != nil {
			observations = append(observations, obs)
		}
	}
	return observations, errors.Join(errs...)
}

func (o *OpenMeteo) fetch(ctx context.Context, loc config.Location) (*models.WeatherObservation, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation,weather_code")
	q.Set("timezone", "UTC")

	var data openMeteoResponse
	if err := getJSON(ctx, o.client, o.baseURL+"?"+q.Encode(), &data); err != nil {
		return nil, err
	}

	observedAt, err := time.Parse("2006-01-02T15:04", data.Current.Time)
	if err != nil {
		observedAt = time.Now().UTC()
	}

	return &models.WeatherObservation{
		Location:      loc.Name,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		Temperature:   data.Current.Temperature,
		Humidity:      data.Current.Humidity,
		WindSpeed:     data.Current.WindSpeed,
		Precipitation: data.Current.Precipitation,
		WeatherCode:   data.Current.WeatherCode,
		ObservedAt:    observedAt,
	}, nil
}
