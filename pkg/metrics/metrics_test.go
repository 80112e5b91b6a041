package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCheckoutMetrics(reg)
	metrics.ObserveRefresh("ok", 250*time.Millisecond)
	metrics.IncSubmission("created")
	metrics.IncSubmission("created")
	metrics.IncPayment("")
	metrics.IncCartRejection("insufficient_stock")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_submissions_total", "outcome", "created"); err != nil {
		t.Fatalf("fetch submissions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected submissions=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "checkout_payments_total", "outcome", "unknown"); err != nil {
		t.Fatalf("fetch payments: %v", err)
	} else if got != 1 {
		t.Fatalf("expected empty outcome to land on unknown, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cart_rejections_total", "reason", "insufficient_stock"); err != nil {
		t.Fatalf("fetch rejections: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejections=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "checkout_refresh_duration_seconds", "outcome", "ok"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestRelayMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewRelayMetrics(reg)
	metrics.IncPublished("order_paid")
	metrics.IncFailed("max_attempts")
	metrics.ObserveBatch(10 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "order_paid"); err != nil || got != 1 {
		t.Fatalf("expected published=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_failed_total", "reason", "max_attempts"); err != nil || got != 1 {
		t.Fatalf("expected failed=1, got %f (%v)", got, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var checkout *CheckoutMetrics
	checkout.IncSubmission("x")
	checkout.ObserveRefresh("x", time.Second)
	NewCheckoutMetrics(nil).IncPayment("x")

	var relay *RelayMetrics
	relay.IncPublished("x")
	NewRelayMetrics(nil).ObserveBatch(time.Second)
}

func TestCronJobMetricsLabelsByJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	metrics.ObserveDuration("order-ttl", 2*time.Second)
	metrics.IncSuccess("order-ttl")
	metrics.IncFailure("")
	metrics.IncFailure("order-ttl")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	runs := findMetricFamily(mfs, "cron_job_runs_total")
	if runs == nil {
		t.Fatal("cron_job_runs_total not registered")
	}
	counts := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		var job, outcome string
		for _, label := range metric.GetLabel() {
			switch label.GetName() {
			case "job":
				job = label.GetValue()
			case "outcome":
				outcome = label.GetValue()
			}
		}
		counts[job+"/"+outcome] = metric.GetCounter().GetValue()
	}
	if counts["order-ttl/success"] != 1 || counts["order-ttl/failure"] != 1 || counts["unknown/failure"] != 1 {
		t.Fatalf("unexpected run counts %v", counts)
	}
	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "order-ttl"); err != nil || got != 2 {
		t.Fatalf("expected duration sum 2, got %f (%v)", got, err)
	}
	if findMetricFamily(mfs, "cron_job_last_success_timestamp_seconds") == nil {
		t.Fatal("expected last success gauge")
	}

	var nilMetrics *CronJobMetrics
	nilMetrics.IncSuccess("noop")
	if NewCronJobMetrics(nil) != nil {
		t.Fatal("nil registerer disables metrics")
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
