package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestProbesTotalCounts(t *testing.T) {
	before := testutil.ToFloat64(ProbesTotal.WithLabelValues(ResultMissingURL))
	ProbesTotal.WithLabelValues(ResultMissingURL).Inc()
	after := testutil.ToFloat64(ProbesTotal.WithLabelValues(ResultMissingURL))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestProbeDurationObserved(t *testing.T) {
	ProbeDuration.Observe(0.2)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "pluginfilter_probe_duration_seconds" {
			family = f
		}
	}
	if family == nil {
		t.Fatal("histogram not registered")
	}
	if family.GetType() != dto.MetricType_HISTOGRAM {
		t.Fatalf("expected histogram, got %v", family.GetType())
	}
	if got := family.GetMetric()[0].GetHistogram().GetSampleCount(); got < 1 {
		t.Errorf("expected at least one sample, got %d", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	RunsTotal.WithLabelValues("success").Inc()
	path := filepath.Join(t.TempDir(), "pluginfilter.prom")

	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `pluginfilter_runs_total{status="success"}`) {
		t.Errorf("expected runs counter in textfile:\n%s", data)
	}
}
