package models

import "time"

// Record is one normalized environmental snapshot fetched during a tick.
// It is either a *WeatherObservation or a *SeismicEvent.
type Record interface {
	RuleType() RuleType
	record()
}

type WeatherObservation struct {
	Location      string
	Latitude      float64
	Longitude     float64
	Temperature   float64 // °C
	Humidity      float64 // %
	WindSpeed     float64 // km/h
	Precipitation float64 // mm
	WeatherCode   int
	ObservedAt    time.Time
}

func (*WeatherObservation) RuleType() RuleType { return RuleTypeWeather }
func (*WeatherObservation) record()            {}

type SeismicEvent struct {
	EventID   string // stable id assigned by the provider
	Magnitude float64
	Place     string
	Latitude  float64
	Longitude float64
	Depth     float64 // km
	Time      time.Time
}

func (*SeismicEvent) RuleType() RuleType { return RuleTypeEarthquake }
func (*SeismicEvent) record()            {}
