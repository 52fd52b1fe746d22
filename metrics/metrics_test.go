package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		PagesTotal,
		LinksDiscovered,
		AnalysisDuration,
		Scores,
		HTTPRequestsTotal,
		RateLimitedTotal,
		DBConnectionsCurrent,
		DBWaitTotal,
	}

	for _, c := range collectors {
		// Registering again must report that the collector already exists
		err := prometheus.Register(c)
		require.Error(t, err)
		var are prometheus.AlreadyRegisteredError
		assert.ErrorAs(t, err, &are)
	}
}

func TestRecordPage(t *testing.T) {
	before := testutil.ToFloat64(PagesTotal.WithLabelValues(PageSkipped, "too_small"))
	RecordPage(PageSkipped, "too_small")
	RecordPage(PageSkipped, "too_small")

	after := testutil.ToFloat64(PagesTotal.WithLabelValues(PageSkipped, "too_small"))
	assert.Equal(t, before+2, after)
}

func TestPagesTotalExposition(t *testing.T) {
	RecordPage(PageAnalyzed, "")

	expected := `sentimint_pages_total{outcome="analyzed",reason=""}`
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "sentimint_pages_total")
	require.NoError(t, err)
	assert.Positive(t, count)

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "sentimint_pages_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+`="`+lp.GetValue()+`"`)
			}
			if "sentimint_pages_total{"+strings.Join(labels, ",")+"}" == expected {
				found = true
			}
		}
	}
	assert.True(t, found, "expected series %s", expected)
}

func TestUpdateDBStatsNil(t *testing.T) {
	assert.NotPanics(t, func() { UpdateDBStats(nil) })
}
