package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.Candidates.WithLabelValues("earthquake", "created").Inc()
	a.Candidates.WithLabelValues("earthquake", "created").Inc()
	b.Candidates.WithLabelValues("earthquake", "created").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Candidates.WithLabelValues("earthquake", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Candidates.WithLabelValues("earthquake", "created")))
}

func TestNewMetrics_Registers(t *testing.T) {
	m := NewMetrics()
	m.CyclesTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal))

	assert.Panics(t, func() { NewMetrics() }, "second registration with the default registry must fail")
}
