package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Monitor.Interval != 5*time.Minute {
		t.Errorf("expected 5m monitor interval, got %s", cfg.Monitor.Interval)
	}
	if cfg.Monitor.DedupWindow != time.Hour {
		t.Errorf("expected 60m dedup window, got %s", cfg.Monitor.DedupWindow)
	}
	if cfg.Notify.PushBatchSize != 500 {
		t.Errorf("expected push batch size 500, got %d", cfg.Notify.PushBatchSize)
	}
	if len(cfg.Weather.Locations) == 0 {
		t.Error("expected default monitored locations")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "10m")
	t.Setenv("MONITOR_SINGLE_FLIGHT", "true")
	t.Setenv("USGS_MIN_MAGNITUDE", "5.5")
	t.Setenv("WEATHER_LOCATIONS", "Batangas:13.7565:121.0583")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Monitor.Interval != 10*time.Minute {
		t.Errorf("expected 10m, got %s", cfg.Monitor.Interval)
	}
	if !cfg.Monitor.SingleFlight {
		t.Error("expected single flight enabled")
	}
	if cfg.USGS.MinMagnitude != 5.5 {
		t.Errorf("expected min magnitude 5.5, got %f", cfg.USGS.MinMagnitude)
	}
	if len(cfg.Weather.Locations) != 1 || cfg.Weather.Locations[0].Name != "Batangas" {
		t.Errorf("unexpected locations: %+v", cfg.Weather.Locations)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"interval too short", "MONITOR_INTERVAL", "30s"},
		{"batch too large", "PUSH_BATCH_SIZE", "501"},
		{"bad location", "WEATHER_LOCATIONS", "Manila:200:120"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestParseLocations(t *testing.T) {
	locs, err := ParseLocations(" Manila:14.5995:120.9842 , Cebu City:10.3157:123.8854,")
	if err != nil {
		t.Fatalf("ParseLocations failed: %v", err)
	}
	if len(locs) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(locs))
	}
	if locs[1].Name != "Cebu City" || locs[1].Latitude != 10.3157 {
		t.Errorf("unexpected location: %+v", locs[1])
	}

	if _, err := ParseLocations("Manila"); err == nil {
		t.Error("expected error for missing coordinates")
	}
}
