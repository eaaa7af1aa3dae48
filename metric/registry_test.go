package metric

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamrelay/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "A test counter",
	})

	require.NoError(t, registry.Register("test-service", "test_counter", counter))
	counter.Add(3)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	mf := findFamily(families, "test_counter_total")
	require.NotNil(t, mf, "counter should be registered in Prometheus registry")
	assert.Equal(t, dto.MetricType_COUNTER, mf.GetType())
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	first := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "first"})
	second := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "first"})

	require.NoError(t, registry.Register("svc", "dup_gauge", first))

	err := registry.Register("svc", "dup_gauge", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = registry.Register("other-svc", "dup_gauge", second)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "prometheus conflict should be invalid, got %v", err)
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "gone_gauge", Help: "gone"})
	require.NoError(t, registry.Register("svc", "gone_gauge", gauge))

	assert.True(t, registry.Unregister("svc", "gone_gauge"))
	assert.False(t, registry.Unregister("svc", "gone_gauge"))
	require.NoError(t, registry.Register("svc", "gone_gauge", gauge))
}

func TestCoreMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordBusStatus(true)
	core.RecordBusRTT(12 * time.Millisecond)
	core.RecordBusReconnect()
	core.RecordBuildInfo("1.2.3")

	assert.Equal(t, 1.0, testutil.ToFloat64(core.BusConnected))
	assert.Equal(t, 12.0, testutil.ToFloat64(core.BusRTT))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.BusReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.BuildInfo.WithLabelValues("1.2.3")))

	core.RecordBusStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(core.BusConnected))
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordBusStatus(true)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(rec.Result().Body)
	require.NoError(t, err, "scrape output must be valid exposition text")

	connected, ok := families["streamrelay_bus_connected"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_GAUGE, connected.GetType())
	require.Len(t, connected.GetMetric(), 1)
	assert.Equal(t, 1.0, connected.GetMetric()[0].GetGauge().GetValue())
}

func TestNewMetricsRegistry_ProcessCollectors(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordBuildInfo("0.1.0")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	assert.NotNil(t, findFamily(families, "go_goroutines"), "go collector registered")

	info := findFamily(families, "streamrelay_build_info")
	require.NotNil(t, info)
	assert.Equal(t, dto.MetricType_GAUGE, info.GetType())
	require.Len(t, info.GetMetric(), 1)
	assert.Equal(t, "0.1.0", info.GetMetric()[0].GetLabel()[0].GetValue())
}
