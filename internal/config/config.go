package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Worker  WorkerConfig
	Monitor MonitorConfig
	Weather WeatherConfig
	USGS    USGSConfig
	Notify  NotifyConfig
	Auth    AuthConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type MonitorConfig struct {
	Enabled            bool
	Interval           time.Duration
	Concurrency        int
	SingleFlight       bool
	FetchTimeout       time.Duration
	DedupWindow        time.Duration
	AlertTTL           time.Duration
	WeatherRadiusKm    float64
	EarthquakeRadiusKm float64
	SOSRadiusKm        float64
}

type WeatherConfig struct {
	Enabled   bool
	URL       string
	Locations []Location
}

// Location is a monitored place in "Name:lat:lon" form.
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

type USGSConfig struct {
	Enabled      bool
	URL          string
	MinMagnitude float64
	Lookback     time.Duration
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

type NotifyConfig struct {
	PushURL                string
	PushKey                string
	SMSURL                 string
	SMSKey                 string
	Timeout                time.Duration
	PushBatchSize          int
	EscalationRadiusKm     float64
	EscalationLimit        int
	EmergencyServiceNumber string
}

type AuthConfig struct {
	JWTSecret string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const defaultLocations = "Manila:14.5995:120.9842,Quezon City:14.6760:121.0437,Cebu City:10.3157:123.8854,Davao City:7.1907:125.4553,Baguio:16.4023:120.5960,Tacloban:11.2443:125.0039"

func Load() (*Config, error) {
	locations, err := ParseLocations(getEnv("WEATHER_LOCATIONS", defaultLocations))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("SERVER_RATE_LIMIT", 20),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Monitor: MonitorConfig{
			Enabled:            getEnvBool("MONITOR_ENABLED", true),
			Interval:           getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
			Concurrency:        getEnvInt("MONITOR_CONCURRENCY", 4),
			SingleFlight:       getEnvBool("MONITOR_SINGLE_FLIGHT", false),
			FetchTimeout:       getEnvDuration("MONITOR_FETCH_TIMEOUT", 20*time.Second),
			DedupWindow:        getEnvDuration("MONITOR_DEDUP_WINDOW", 60*time.Minute),
			AlertTTL:           getEnvDuration("ALERT_TTL", 24*time.Hour),
			WeatherRadiusKm:    getEnvFloat("WEATHER_ALERT_RADIUS_KM", 50),
			EarthquakeRadiusKm: getEnvFloat("EARTHQUAKE_ALERT_RADIUS_KM", 100),
			SOSRadiusKm:        getEnvFloat("SOS_ALERT_RADIUS_KM", 25),
		},
		Weather: WeatherConfig{
			Enabled:   getEnvBool("WEATHER_ENABLED", true),
			URL:       getEnv("WEATHER_URL", "https://api.open-meteo.com/v1/forecast"),
			Locations: locations,
		},
		USGS: USGSConfig{
			Enabled:      getEnvBool("USGS_ENABLED", true),
			URL:          getEnv("USGS_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			MinMagnitude: getEnvFloat("USGS_MIN_MAGNITUDE", 4.0),
			Lookback:     getEnvDuration("USGS_LOOKBACK", time.Hour),
			MinLatitude:  getEnvFloat("USGS_MIN_LATITUDE", 4.5),
			MaxLatitude:  getEnvFloat("USGS_MAX_LATITUDE", 21.5),
			MinLongitude: getEnvFloat("USGS_MIN_LONGITUDE", 116.0),
			MaxLongitude: getEnvFloat("USGS_MAX_LONGITUDE", 127.0),
		},
		Notify: NotifyConfig{
			PushURL:                getEnv("PUSH_GATEWAY_URL", ""),
			PushKey:                getEnv("PUSH_GATEWAY_KEY", ""),
			SMSURL:                 getEnv("SMS_GATEWAY_URL", ""),
			SMSKey:                 getEnv("SMS_GATEWAY_KEY", ""),
			Timeout:                getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
			PushBatchSize:          getEnvInt("PUSH_BATCH_SIZE", 500),
			EscalationRadiusKm:     getEnvFloat("ESCALATION_RADIUS_KM", 25),
			EscalationLimit:        getEnvInt("ESCALATION_RESPONDER_LIMIT", 5),
			EmergencyServiceNumber: getEnv("EMERGENCY_SERVICE_NUMBER", "911"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/alert-automation.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("server rate limit must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Monitor.Interval < time.Minute {
		return fmt.Errorf("monitor interval must be at least 1 minute")
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor concurrency must be at least 1")
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("monitor fetch timeout must be positive")
	}
	if c.Monitor.DedupWindow <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	if c.Monitor.WeatherRadiusKm <= 0 || c.Monitor.EarthquakeRadiusKm <= 0 || c.Monitor.SOSRadiusKm <= 0 {
		return fmt.Errorf("alert radius must be positive")
	}

	if c.USGS.MinLatitude >= c.USGS.MaxLatitude || c.USGS.MinLongitude >= c.USGS.MaxLongitude {
		return fmt.Errorf("invalid USGS bounding box")
	}
	if c.USGS.Lookback <= 0 {
		return fmt.Errorf("USGS lookback must be positive")
	}

	if c.Notify.PushBatchSize < 1 || c.Notify.PushBatchSize > 500 {
		return fmt.Errorf("push batch size must be between 1 and 500: %d", c.Notify.PushBatchSize)
	}
	if c.Notify.Timeout <= 0 {
		return fmt.Errorf("notify timeout must be positive")
	}
	if c.Notify.EscalationLimit < 0 {
		return fmt.Errorf("escalation responder limit must not be negative")
	}

	if c.Worker.Count < 1 || c.Worker.BufferSize < 1 {
		return fmt.Errorf("worker count and buffer size must be positive")
	}

	return nil
}

// ParseLocations parses a comma separated list of Name:lat:lon entries.
func ParseLocations(s string) ([]Location, error) {
	var locations []Location
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid location %q: expected Name:lat:lon", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in location %q", part)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in location %q", part)
		}
		locations = append(locations, Location{
			Name:      strings.TrimSpace(fields[0]),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return locations, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
