package targeting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/repository"
)

const earthRadiusKm = 6371.0

// Distance is the great-circle distance in kilometers between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push a just above 1 for antipodal points
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(math.Min(1, a)))
}

var ErrUntargetable = errors.New("alert has neither affected areas nor a center point with radius")

type RecipientLister interface {
	ListRecipients(ctx context.Context, opts repository.RecipientFilter) ([]models.Recipient, error)
}

type Result struct {
	Recipients []models.Recipient
	Count      int
}

// Resolver computes the recipients of an alert. It only reads.
type Resolver struct {
	recipients RecipientLister
}

func NewResolver(recipients RecipientLister) *Resolver {
	return &Resolver{recipients: recipients}
}

// Resolve returns the recipients an alert reaches for the given category.
func (r *Resolver) Resolve(ctx context.Context, alert *models.DisasterAlert, category models.Category) (Result, error) {
	if !alert.AreaBased() && !alert.RadiusBased() {
		return Result{}, fmt.Errorf("alert %d: %w", alert.ID, ErrUntargetable)
	}

	all, err := r.recipients.ListRecipients(ctx, repository.RecipientFilter{})
	if err != nil {
		return Result{}, fmt.Errorf("error loading recipients: %w", err)
	}

	matched := Filter(alert, category, all)
	return Result{Recipients: matched, Count: len(matched)}, nil
}

// Filter applies area or radius matching and then the category preference.
func Filter(alert *models.DisasterAlert, category models.Category, all []models.Recipient) []models.Recipient {
	var areas map[string]struct{}
	if alert.AreaBased() {
		areas = make(map[string]struct{}, len(alert.AffectedAreas))
		for _, a := range alert.AffectedAreas {
			areas[normalize(a)] = struct{}{}
		}
	}

	var out []models.Recipient
	for _, rec := range all {
		if areas != nil {
			if !inAreas(rec, areas) {
				continue
			}
		} else if !withinRadius(rec, *alert.Latitude, *alert.Longitude, *alert.RadiusKm) {
			continue
		}
		if !rec.Wants(category) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// CategoryFor maps an alert to the preference category that gates it.
func CategoryFor(alert *models.DisasterAlert) models.Category {
	switch alert.Source {
	case models.SourceAutoEarthquake:
		return models.CategoryEarthquake
	case models.SourceAutoWeather:
		return models.CategoryWeather
	}
	if strings.EqualFold(strings.TrimSpace(alert.Type), "earthquake") {
		return models.CategoryEarthquake
	}
	return models.CategoryWeather
}

func inAreas(rec models.Recipient, areas map[string]struct{}) bool {
	city, province := normalize(rec.City), normalize(rec.Province)
	if city == "" && province == "" {
		// unknown location is not excluded
		return true
	}
	if _, ok := areas[city]; ok && city != "" {
		return true
	}
	_, ok := areas[province]
	return ok && province != ""
}

func withinRadius(rec models.Recipient, lat, lon, radiusKm float64) bool {
	if !rec.HasCoordinates() {
		return false
	}
	return Distance(lat, lon, *rec.Latitude, *rec.Longitude) <= radiusKm
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
