package api

import (
	"github.com/mr1hm/go-alert-automation/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func toGeoJSON(alerts []models.DisasterAlert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))
	for i := range alerts {
		features = append(features, toFeature(&alerts[i]))
	}
	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// toFeature places the alert at its center point. Area-only alerts have a
// null geometry.
func toFeature(a *models.DisasterAlert) Feature {
	f := Feature{
		Type: "Feature",
		Properties: map[string]any{
			"id":             a.ID,
			"type":           a.Type,
			"severity":       a.Severity,
			"title":          a.Title,
			"description":    a.Description,
			"source":         a.Source,
			"affected_areas": a.AffectedAreas,
			"created_at":     a.CreatedAt,
		},
	}
	if a.Latitude != nil && a.Longitude != nil {
		f.Geometry = &Geometry{
			Type:        "Point",
			Coordinates: []float64{*a.Longitude, *a.Latitude},
		}
	}
	if a.RadiusKm != nil {
		f.Properties["radius_km"] = *a.RadiusKm
	}
	if a.ExpiresAt != nil {
		f.Properties["expires_at"] = *a.ExpiresAt
	}
	return f
}
