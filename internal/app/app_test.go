package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-alert-automation/internal/config"
	"github.com/mr1hm/go-alert-automation/internal/metrics"
)

func TestNew_DisabledSources(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "alerts.db"))
	t.Setenv("WEATHER_ENABLED", "false")
	t.Setenv("USGS_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := New(cfg, metrics.NewMetricsForTesting())
	require.NoError(t, err)
	defer a.Close()

	report := a.Service.RunCycle(context.Background())
	assert.Zero(t, report.Candidates, "no sources means an empty cycle")
	assert.Zero(t, report.Errors)

	report, ran := a.Scheduler.RunOnce(context.Background())
	assert.True(t, ran)
	assert.NotEmpty(t, report.CycleID)
}
