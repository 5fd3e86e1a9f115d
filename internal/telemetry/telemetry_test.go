package telemetry

import (
	"strings"
	"testing"

	"github.com/vthunder/voidmem/internal/voidconfig"
	"github.com/vthunder/voidmem/internal/voidmem"
)

func newProbeManager(t *testing.T) *voidmem.Manager {
	t.Helper()
	cfg := voidconfig.Defaults()
	cfg.Capacity = 32
	cfg.BaseTTL = 64
	cfg.DecayHalfLife = 16
	cfg.PruneSample = 16
	seed := int64(99)
	cfg.Seed = &seed

	m, err := voidmem.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ids := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	texts := []string{
		"alpha trace about rivers and mountains",
		"beta trace about circuits and wires",
		"gamma trace about gardens and soil",
		"delta trace about stars and orbits",
		"epsilon trace about oceans and tides",
		"zeta trace about forests and roots",
	}
	if err := m.RegisterChunks(ids, texts, nil, nil); err != nil {
		t.Fatalf("RegisterChunks: %v", err)
	}
	return m
}

func TestDriveManagerForTelemetryProducesOneSamplePerWindow(t *testing.T) {
	m := newProbeManager(t)
	cfg := ProbeConfig{Iterations: 5, BatchSize: 3, DegradeInterval: 2, TTLFloor: 20, HeatGain: 1.0, TTLBoost: 50}

	samples := DriveManagerForTelemetry(m, cfg)
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(samples))
	}
	for i, s := range samples {
		if s.Label == "" {
			t.Fatalf("sample %d missing label", i)
		}
		if s.Count != 6 {
			t.Fatalf("sample %d: expected count 6 (no evictions expected yet), got %d", i, s.Count)
		}
	}
}

func TestDriveManagerForTelemetryZeroIterationsYieldsNoSamples(t *testing.T) {
	m := newProbeManager(t)
	samples := DriveManagerForTelemetry(m, ProbeConfig{Iterations: 0})
	if len(samples) != 0 {
		t.Fatalf("expected no samples for zero iterations, got %d", len(samples))
	}
}

func TestSummarizeSamplesNoThresholdsSkipsAnomalyDetection(t *testing.T) {
	m := newProbeManager(t)
	samples := DriveManagerForTelemetry(m, ProbeConfig{Iterations: 3, BatchSize: 2, HeatGain: 1.0, TTLBoost: 50})

	summary := SummarizeSamples(samples, nil, nil)
	if summary.Status != "ok" {
		t.Fatalf("expected status ok without thresholds, got %q", summary.Status)
	}
	if summary.Anomalies != nil {
		t.Fatalf("expected no anomalies computed without thresholds, got %+v", summary.Anomalies)
	}
}

func TestSummarizeSamplesEmptyYieldsOkStatus(t *testing.T) {
	summary := SummarizeSamples(nil, nil, nil)
	if summary.Status != "ok" {
		t.Fatalf("expected ok status for empty samples, got %q", summary.Status)
	}
	if summary.EventTotals == nil {
		t.Fatalf("expected non-nil empty EventTotals map")
	}
}

func TestDetectAnomaliesRewardEMABelowFloor(t *testing.T) {
	samples := []Sample{{Label: "window-1", RewardEMA: 0.01, MaxHeat: 0.1}}
	summary := Summary{FinalRewardEMA: 0.01}
	thresholds := Thresholds{MinRewardEMA: 0.12, MaxAvgHeatDelta: 2.5, MaxHeat: 3.0}

	anomalies := DetectAnomalies(samples, summary, thresholds, nil)
	found := false
	for _, a := range anomalies {
		if a.Metric == "reward_ema" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reward_ema anomaly, got %+v", anomalies)
	}
}

func TestDetectAnomaliesMaxHeatSeverityEscalates(t *testing.T) {
	samples := []Sample{
		{Label: "window-1", MaxHeat: 3.1}, // just over limit -> warning
		{Label: "window-2", MaxHeat: 4.0}, // > limit*1.2 -> critical
	}
	summary := Summary{FinalRewardEMA: 1.0}
	thresholds := Thresholds{MinRewardEMA: 0.0, MaxAvgHeatDelta: 100, MaxHeat: 3.0}

	anomalies := DetectAnomalies(samples, summary, thresholds, nil)
	var sawWarning, sawCritical bool
	for _, a := range anomalies {
		if a.Metric != "max_heat" {
			continue
		}
		if a.Sample == "window-1" && a.Severity == "warning" {
			sawWarning = true
		}
		if a.Sample == "window-2" && a.Severity == "critical" {
			sawCritical = true
		}
	}
	if !sawWarning || !sawCritical {
		t.Fatalf("expected escalating severities, got %+v", anomalies)
	}
}

func TestDetectAnomaliesResourceThresholds(t *testing.T) {
	samples := []Sample{{Label: "window-1", RewardEMA: 1.0, MaxHeat: 0.1}}
	summary := Summary{FinalRewardEMA: 1.0}
	thresholds := Thresholds{MinRewardEMA: 0, MaxAvgHeatDelta: 100, MaxHeat: 100, MaxRSSBytes: 1000, MaxCPUPercent: 50}
	resource := &ResourceSample{RSSBytes: 2000, CPUPercent: 75}

	anomalies := DetectAnomalies(samples, summary, thresholds, resource)
	var sawRSS, sawCPU bool
	for _, a := range anomalies {
		if a.Metric == "rss_bytes" {
			sawRSS = true
		}
		if a.Metric == "cpu_percent" {
			sawCPU = true
		}
	}
	if !sawRSS || !sawCPU {
		t.Fatalf("expected both resource anomalies, got %+v", anomalies)
	}
}

func TestDetectAnomaliesResourceDisabledWhenThresholdZero(t *testing.T) {
	samples := []Sample{{Label: "window-1", RewardEMA: 1.0}}
	summary := Summary{FinalRewardEMA: 1.0}
	thresholds := Thresholds{MinRewardEMA: 0, MaxAvgHeatDelta: 100, MaxHeat: 100}
	resource := &ResourceSample{RSSBytes: 999999999, CPUPercent: 999}

	anomalies := DetectAnomalies(samples, summary, thresholds, resource)
	for _, a := range anomalies {
		if a.Metric == "rss_bytes" || a.Metric == "cpu_percent" {
			t.Fatalf("expected resource checks disabled at zero threshold, got %+v", a)
		}
	}
}

func TestRenderMarkdownReportIncludesTableAndStatus(t *testing.T) {
	m := newProbeManager(t)
	cfg := ProbeConfig{Iterations: 3, BatchSize: 2, HeatGain: 1.0, TTLBoost: 50}
	samples := DriveManagerForTelemetry(m, cfg)
	thresholds := DefaultThresholds()
	summary := SummarizeSamples(samples, &thresholds, nil)
	report := Report{GeneratedAt: "2026-07-31T00:00:00Z", Config: cfg, Samples: samples, Summary: summary}

	out := RenderMarkdownReport(report)
	if !strings.Contains(out, "Void Dynamics Nightly Telemetry") {
		t.Fatalf("expected report title, got:\n%s", out)
	}
	if !strings.Contains(out, "| Window | Tick |") {
		t.Fatalf("expected a samples table, got:\n%s", out)
	}
	if !strings.Contains(out, strings.ToUpper(summary.Status)) {
		t.Fatalf("expected status to appear uppercased, got:\n%s", out)
	}
}

func TestRenderMarkdownReportHandlesNoSamples(t *testing.T) {
	report := Report{GeneratedAt: "2026-07-31T00:00:00Z", Summary: Summary{Status: "ok", EventTotals: map[string]int{}}}
	out := RenderMarkdownReport(report)
	if !strings.Contains(out, "No telemetry samples were collected") {
		t.Fatalf("expected no-samples message, got:\n%s", out)
	}
}

func TestGenerateReportEndToEnd(t *testing.T) {
	m := newProbeManager(t)
	cfg := ProbeConfig{Iterations: 4, BatchSize: 2, DegradeInterval: 2, TTLFloor: 20, HeatGain: 1.0, TTLBoost: 50}
	thresholds := DefaultThresholds()

	report := GenerateReport(m, cfg, thresholds)
	if len(report.Samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(report.Samples))
	}
	if report.GeneratedAt == "" {
		t.Fatalf("expected a non-empty GeneratedAt timestamp")
	}
	if report.Summary.Thresholds != thresholds {
		t.Fatalf("expected thresholds to round-trip into the summary")
	}
}
