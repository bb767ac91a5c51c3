package automation

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-alert-automation/internal/dedup"
	"github.com/mr1hm/go-alert-automation/internal/metrics"
	"github.com/mr1hm/go-alert-automation/internal/models"
	"github.com/mr1hm/go-alert-automation/internal/notify"
	"github.com/mr1hm/go-alert-automation/internal/repository"
	"github.com/mr1hm/go-alert-automation/internal/stream"
	"github.com/mr1hm/go-alert-automation/internal/targeting"
	"github.com/mr1hm/go-alert-automation/internal/worker"
)

var (
	ErrNotPending   = errors.New("alert is not pending approval")
	ErrNotManual    = errors.New("only manual alerts can be broadcast")
	ErrInactive     = errors.New("alert is not active")
	ErrInvalidAlert = errors.New("invalid alert")
)

type WeatherSource interface {
	Observations(ctx context.Context) ([]*models.WeatherObservation, error)
}

type EarthquakeSource interface {
	Events(ctx context.Context) ([]*models.SeismicEvent, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, alert *models.DisasterAlert, recipients []models.Recipient) notify.Result
}

type Config struct {
	Concurrency        int
	FetchTimeout       time.Duration
	DedupWindow        time.Duration
	AlertTTL           time.Duration
	WeatherRadiusKm    float64
	EarthquakeRadiusKm float64
	SOSRadiusKm        float64
	Workers            int
	QueueSize          int
}

// Deps are the collaborators of a Service. Weather and Earthquakes may be
// nil to disable that domain. Stream, Clock and Metrics are optional.
type Deps struct {
	Store       repository.Store
	Weather     WeatherSource
	Earthquakes EarthquakeSource
	Fanout      Deliverer
	Stream      *stream.Broadcaster
	Clock       clockwork.Clock
	Metrics     *metrics.Metrics
}

// Service runs the monitoring pipeline and the approval workflow.
type Service struct {
	cfg      Config
	store    repository.Store
	weather  WeatherSource
	quakes   EarthquakeSource
	guard    *dedup.Guard
	resolver *targeting.Resolver
	fanout   Deliverer
	stream   *stream.Broadcaster
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	pool     *worker.WorkerPool
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.AlertTTL <= 0 {
		cfg.AlertTTL = 24 * time.Hour
	}
	if cfg.WeatherRadiusKm <= 0 {
		cfg.WeatherRadiusKm = 50
	}
	if cfg.EarthquakeRadiusKm <= 0 {
		cfg.EarthquakeRadiusKm = 100
	}
	if cfg.SOSRadiusKm <= 0 {
		cfg.SOSRadiusKm = 25
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetricsForTesting()
	}

	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		weather:  deps.Weather,
		quakes:   deps.Earthquakes,
		guard:    dedup.NewGuard(deps.Store, deps.Clock, cfg.DedupWindow),
		resolver: targeting.NewResolver(deps.Store),
		fanout:   deps.Fanout,
		stream:   deps.Stream,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
	}
	s.pool = worker.NewWorkerPool(cfg.Workers, cfg.QueueSize, s.processDispatch)
	return s
}

// Start launches the dispatch workers. ctx bounds every queued fanout.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Stop drains the dispatch queue.
func (s *Service) Stop() {
	s.pool.Stop()
}

type Stats struct {
	Pending  int              `json:"pending"`
	ByStatus map[string]int64 `json:"by_status"`
}

// Stats returns the operator counters: pending alerts and log entries per
// status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountLogsByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	pending, err := s.store.ListAlerts(ctx, repository.AlertFilter{PendingOnly: true})
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Pending: len(pending), ByStatus: make(map[string]int64)}
	for _, status := range []models.LogStatus{
		models.LogStatusCreated, models.LogStatusSkipped, models.LogStatusError,
		models.LogStatusApproved, models.LogStatusRejected,
	} {
		st.ByStatus[string(status)] = counts[status]
	}
	return st, nil
}
