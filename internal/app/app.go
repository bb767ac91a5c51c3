package app

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-alert-automation/internal/automation"
	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/ingestion"
	"github.com/mr1hm/go-alert-automation/internal/metrics"
	"github.com/mr1hm/go-alert-automation/internal/notify"
	"github.com/mr1hm/go-alert-automation/internal/repository"
	"github.com/mr1hm/go-alert-automation/internal/stream"
)

// App is the wired pipeline shared by the server and the one-shot runner.
type App struct {
	DB        *repository.SQLiteDB
	Metrics   *metrics.Metrics
	Stream    *stream.Broadcaster
	Service   *automation.Service
	Scheduler *automation.Scheduler
}

func New(cfg *config.Config, m *metrics.Metrics) (*App, error) {
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	clock := clockwork.NewRealClock()
	broadcaster := stream.NewBroadcaster(m.StreamSubscribers)

	var push notify.PushSender
	if cfg.Notify.PushURL != "" {
		push = notify.NewPushGateway(cfg.Notify.PushURL, cfg.Notify.PushKey, cfg.Notify.Timeout)
	} else {
		slog.Warn("no push gateway configured, push notifications are logged only")
	}
	var sms notify.SMSSender
	if cfg.Notify.SMSURL != "" {
		sms = notify.NewSMSGateway(cfg.Notify.SMSURL, cfg.Notify.SMSKey, cfg.Notify.Timeout)
	} else {
		slog.Warn("no sms gateway configured, sms notifications are logged only")
	}
	fanout := notify.NewFanout(notify.Config{
		BatchSize:              cfg.Notify.PushBatchSize,
		EscalationRadiusKm:     cfg.Notify.EscalationRadiusKm,
		EscalationLimit:        cfg.Notify.EscalationLimit,
		EmergencyServiceNumber: cfg.Notify.EmergencyServiceNumber,
	}, push, sms, nil, db, m)

	deps := automation.Deps{
		Store:   db,
		Fanout:  fanout,
		Stream:  broadcaster,
		Clock:   clock,
		Metrics: m,
	}
	if cfg.Weather.Enabled && len(cfg.Weather.Locations) > 0 {
		deps.Weather = ingestion.NewOpenMeteo(cfg.Weather, cfg.Monitor.FetchTimeout)
	}
	if cfg.USGS.Enabled {
		deps.Earthquakes = ingestion.NewUSGS(cfg.USGS, cfg.Monitor.FetchTimeout, clock)
	}

	svc := automation.NewService(automation.Config{
		Concurrency:        cfg.Monitor.Concurrency,
		FetchTimeout:       cfg.Monitor.FetchTimeout,
		DedupWindow:        cfg.Monitor.DedupWindow,
		AlertTTL:           cfg.Monitor.AlertTTL,
		WeatherRadiusKm:    cfg.Monitor.WeatherRadiusKm,
		EarthquakeRadiusKm: cfg.Monitor.EarthquakeRadiusKm,
		SOSRadiusKm:        cfg.Monitor.SOSRadiusKm,
		Workers:            cfg.Worker.Count,
		QueueSize:          cfg.Worker.BufferSize,
	}, deps)

	return &App{
		DB:        db,
		Metrics:   m,
		Stream:    broadcaster,
		Service:   svc,
		Scheduler: automation.NewScheduler(svc, cfg.Monitor.Interval, cfg.Monitor.SingleFlight, clock),
	}, nil
}

func (a *App) Close() error {
	a.Stream.Close()
	return a.DB.Close()
}
