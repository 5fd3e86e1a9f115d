// Package telemetry ports original_source/src/void_dynamics/telemetry.py's
// probe driver, anomaly checker, and report renderer to Go, wired against
// internal/voidmem.Manager instead of the Python VoidMemoryManager.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vthunder/voidmem/internal/voidmem"
)

// Sample is a snapshot of manager health collected during one probe window.
type Sample struct {
	Label         string         `json:"label"`
	Tick          int            `json:"tick"`
	Count         int            `json:"count"`
	RewardEMA     float64        `json:"reward_ema"`
	AvgHeat       float64        `json:"avg_heat"`
	MaxHeat       float64        `json:"max_heat"`
	Territories   int            `json:"territories"`
	FrontierSize  int            `json:"frontier_size"`
	SplitCounter  int            `json:"split_counter"`
	MergeCounter  int            `json:"merge_counter"`
	AvgConfidence float64        `json:"avg_confidence"`
	AvgNovelty    float64        `json:"avg_novelty"`
	AvgBoredom    float64        `json:"avg_boredom"`
	AvgMass       float64        `json:"avg_mass"`
	Events        map[string]int `json:"events"`
	ReinforcedIDs []string       `json:"reinforced_ids"`
}

// Thresholds configures anomaly detection, mirroring AnomalyThresholds.
// The resource fields are a supplemented extension beyond the Python
// source; a zero value disables that particular check.
type Thresholds struct {
	MinRewardEMA    float64 `json:"min_reward_ema"`
	MaxAvgHeatDelta float64 `json:"max_avg_heat_delta"`
	MaxHeat         float64 `json:"max_heat"`
	MaxRSSBytes     uint64  `json:"max_rss_bytes,omitempty"`
	MaxCPUPercent   float64 `json:"max_cpu_percent,omitempty"`
}

// DefaultThresholds mirrors the Python dataclass' declared defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRewardEMA:    0.12,
		MaxAvgHeatDelta: 2.5,
		MaxHeat:         3.0,
	}
}

// Anomaly is a single structured anomaly finding.
type Anomaly struct {
	Metric   string `json:"metric"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Sample   string `json:"sample"`
}

func countEvents(events []map[string]any) map[string]int {
	counts := make(map[string]int)
	for _, ev := range events {
		typ, _ := ev["type"].(string)
		if typ == "" {
			typ = "unknown"
		}
		counts[typ]++
	}
	return counts
}

// HeatTrend captures the first-to-last change in average/max heat across
// a probe run.
type HeatTrend struct {
	AvgDelta float64 `json:"avg_delta"`
	MaxDelta float64 `json:"max_delta"`
}

// Summary aggregates a probe run's samples into trend and anomaly data.
type Summary struct {
	EventTotals     map[string]int `json:"event_totals"`
	HeatTrend       HeatTrend      `json:"heat_trend"`
	FinalRewardEMA  float64        `json:"final_reward_ema"`
	FinalFrontier   int            `json:"final_frontier"`
	TerritorySpan   int            `json:"territory_span"`
	Thresholds      Thresholds     `json:"thresholds"`
	Anomalies       []Anomaly      `json:"anomalies"`
	Status          string         `json:"status"`
	Resource        *ResourceSample `json:"resource,omitempty"`
}

// Report is the full structured output written to disk by
// cmd/voidmem-telemetry, mirroring generate_report's dict shape.
type Report struct {
	GeneratedAt string       `json:"generated_at"`
	Config      ProbeConfig  `json:"config"`
	Samples     []Sample     `json:"samples"`
	Summary     Summary      `json:"summary"`
}

// ProbeConfig parameterises DriveManagerForTelemetry.
type ProbeConfig struct {
	Iterations      int     `json:"iterations"`
	BatchSize       int     `json:"batch_size"`
	DegradeInterval int     `json:"degrade_interval"`
	TTLFloor        int     `json:"ttl_floor"`
	HeatGain        float64 `json:"heat_gain"`
	TTLBoost        int     `json:"ttl_boost"`
}

// DefaultProbeConfig mirrors the Python script's argparse defaults.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Iterations:      24,
		BatchSize:       4,
		DegradeInterval: 6,
		TTLFloor:        24,
		HeatGain:        1.0,
		TTLBoost:        120,
	}
}

// CollectSample reads a structured telemetry sample off the manager's
// current state, mirroring collect_sample.
func CollectSample(m *voidmem.Manager, label string, events []map[string]any, reinforcedIDs []string) Sample {
	snap := m.ToDict()
	stats := m.Stats()

	var avgHeat, maxHeat float64
	if len(snap.Mem) > 0 {
		var sum float64
		for _, tr := range snap.Mem {
			sum += tr.Heat
			if tr.Heat > maxHeat {
				maxHeat = tr.Heat
			}
		}
		avgHeat = sum / float64(len(snap.Mem))
	}

	return Sample{
		Label:         label,
		Tick:          snap.Tick,
		Count:         len(snap.Mem),
		RewardEMA:     snap.RewardEMA,
		AvgHeat:       avgHeat,
		MaxHeat:       maxHeat,
		Territories:   len(snap.TerritoryCentroids),
		FrontierSize:  len(snap.Frontier),
		SplitCounter:  snap.SplitCounter,
		MergeCounter:  snap.MergeCounter,
		AvgConfidence: stats.AvgConfidence,
		AvgNovelty:    stats.AvgNovelty,
		AvgBoredom:    stats.AvgBoredom,
		AvgMass:       stats.AvgMass,
		Events:        countEvents(events),
		ReinforcedIDs: append([]string(nil), reinforcedIDs...),
	}
}

func eventsAsMaps(m *voidmem.Manager) []map[string]any {
	raw := m.ConsumeEvents()
	out := make([]map[string]any, len(raw))
	for i, ev := range raw {
		out[i] = ev.MarshalEntry()
	}
	return out
}

// DriveManagerForTelemetry runs a deterministic probe against m, exercising
// reinforcement and degradation the same way the Python source's
// drive_manager_for_telemetry does, and returns one Sample per window.
func DriveManagerForTelemetry(m *voidmem.Manager, cfg ProbeConfig) []Sample {
	var samples []Sample
	if cfg.Iterations <= 0 {
		return samples
	}

	for window := 1; window <= cfg.Iterations; window++ {
		snap := m.ToDict()
		if len(snap.Mem) == 0 {
			break
		}
		ids := make([]string, 0, len(snap.Mem))
		for id := range snap.Mem {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		batchSize := cfg.BatchSize
		if batchSize > len(ids) {
			batchSize = len(ids)
		}
		rowIDs := make([]string, batchSize)
		distances := make([]float64, batchSize)
		for offset := 0; offset < batchSize; offset++ {
			rowIDs[offset] = ids[(window+offset)%len(ids)]
			distances[offset] = 0.05 + 0.05*float64(offset)
		}

		_ = m.Reinforce([][]string{rowIDs}, [][]float64{distances}, cfg.HeatGain, cfg.TTLBoost)

		if cfg.DegradeInterval > 0 && window%cfg.DegradeInterval == 0 {
			_ = m.Degrade(rowIDs, cfg.TTLFloor)
		}

		events := eventsAsMaps(m)
		samples = append(samples, CollectSample(m, fmt.Sprintf("window-%d", window), events, rowIDs))
	}

	return samples
}

// DetectAnomalies mirrors detect_anomalies, evaluating the final reward
// EMA, the heat trend, and every sample's max heat against thresholds.
// The resource checks are a supplemented extension: resource is nil when
// no resource sample was taken.
func DetectAnomalies(samples []Sample, summary Summary, thresholds Thresholds, resource *ResourceSample) []Anomaly {
	var anomalies []Anomaly
	if len(samples) == 0 {
		return anomalies
	}

	last := samples[len(samples)-1]

	if summary.FinalRewardEMA < thresholds.MinRewardEMA {
		anomalies = append(anomalies, Anomaly{
			Metric:   "reward_ema",
			Severity: "critical",
			Message:  fmt.Sprintf("Final reward EMA %.4f fell below floor %.4f", summary.FinalRewardEMA, thresholds.MinRewardEMA),
			Sample:   last.Label,
		})
	}

	if summary.HeatTrend.AvgDelta > thresholds.MaxAvgHeatDelta {
		anomalies = append(anomalies, Anomaly{
			Metric:   "avg_heat_delta",
			Severity: "warning",
			Message:  fmt.Sprintf("Average heat delta %.4f exceeded limit %.4f", summary.HeatTrend.AvgDelta, thresholds.MaxAvgHeatDelta),
			Sample:   last.Label,
		})
	}

	for _, s := range samples {
		if s.MaxHeat > thresholds.MaxHeat {
			severity := "warning"
			if s.MaxHeat > thresholds.MaxHeat*1.2 {
				severity = "critical"
			}
			anomalies = append(anomalies, Anomaly{
				Metric:   "max_heat",
				Severity: severity,
				Message:  fmt.Sprintf("Max heat %.4f exceeded limit %.4f", s.MaxHeat, thresholds.MaxHeat),
				Sample:   s.Label,
			})
		}
	}

	if resource != nil {
		if thresholds.MaxRSSBytes > 0 && resource.RSSBytes > thresholds.MaxRSSBytes {
			anomalies = append(anomalies, Anomaly{
				Metric:   "rss_bytes",
				Severity: "warning",
				Message:  fmt.Sprintf("Process RSS %d bytes exceeded limit %d bytes", resource.RSSBytes, thresholds.MaxRSSBytes),
				Sample:   "resource",
			})
		}
		if thresholds.MaxCPUPercent > 0 && resource.CPUPercent > thresholds.MaxCPUPercent {
			anomalies = append(anomalies, Anomaly{
				Metric:   "cpu_percent",
				Severity: "warning",
				Message:  fmt.Sprintf("Process CPU %.2f%% exceeded limit %.2f%%", resource.CPUPercent, thresholds.MaxCPUPercent),
				Sample:   "resource",
			})
		}
	}

	return anomalies
}

// SummarizeSamples mirrors summarize_samples, computing aggregate trend
// data and running anomaly detection when thresholds is non-nil.
func SummarizeSamples(samples []Sample, thresholds *Thresholds, resource *ResourceSample) Summary {
	if len(samples) == 0 {
		summary := Summary{
			EventTotals: map[string]int{},
			Status:      "ok",
		}
		if thresholds != nil {
			summary.Thresholds = *thresholds
		}
		return summary
	}

	eventTotals := make(map[string]int)
	for _, s := range samples {
		for typ, count := range s.Events {
			eventTotals[typ] += count
		}
	}

	first, last := samples[0], samples[len(samples)-1]
	territorySpan := 0
	for _, s := range samples {
		if s.Territories > territorySpan {
			territorySpan = s.Territories
		}
	}

	summary := Summary{
		EventTotals:    eventTotals,
		HeatTrend:      HeatTrend{AvgDelta: last.AvgHeat - first.AvgHeat, MaxDelta: last.MaxHeat - first.MaxHeat},
		FinalRewardEMA: last.RewardEMA,
		FinalFrontier:  last.FrontierSize,
		TerritorySpan:  territorySpan,
	}

	if thresholds != nil {
		summary.Thresholds = *thresholds
		summary.Anomalies = DetectAnomalies(samples, summary, *thresholds, resource)
		summary.Resource = resource
		if len(summary.Anomalies) > 0 {
			summary.Status = "alert"
		} else {
			summary.Status = "ok"
		}
	} else {
		summary.Status = "ok"
	}

	return summary
}

// GenerateReport runs a probe against m and folds the result into a
// Report, mirroring generate_report.
func GenerateReport(m *voidmem.Manager, cfg ProbeConfig, thresholds Thresholds) Report {
	samples := DriveManagerForTelemetry(m, cfg)
	resource, err := SampleProcessResources()
	var resourcePtr *ResourceSample
	if err == nil {
		resourcePtr = &resource
	}
	summary := SummarizeSamples(samples, &thresholds, resourcePtr)

	return Report{
		GeneratedAt: time.Now().UTC().Format("2006-01-02T15:04:05.999999999Z"),
		Config:      cfg,
		Samples:     samples,
		Summary:     summary,
	}
}

// RenderMarkdownReport mirrors render_markdown_report, producing the same
// table + aggregates + anomalies layout from a Report.
func RenderMarkdownReport(report Report) string {
	var b strings.Builder
	b.WriteString("# Void Dynamics Nightly Telemetry\n\n")

	if len(report.Samples) > 0 {
		b.WriteString("| Window | Tick | Memories | Reward EMA | Avg Heat | Max Heat | Territories | Frontier | Splits | Merges | Reinforce | Degrade | Prune |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, s := range report.Samples {
			fmt.Fprintf(&b, "| %s | %d | %d | %.4f | %.4f | %.4f | %d | %d | %d | %d | %d | %d | %d |\n",
				s.Label, s.Tick, s.Count, s.RewardEMA, s.AvgHeat, s.MaxHeat, s.Territories, s.FrontierSize,
				s.SplitCounter, s.MergeCounter, s.Events["reinforce"], s.Events["degrade"], s.Events["prune"])
		}
		b.WriteString("\n")
	} else {
		b.WriteString("_No telemetry samples were collected._\n\n")
	}

	summary := report.Summary
	b.WriteString("## Aggregates\n\n")
	fmt.Fprintf(&b, "- Final reward EMA: %.4f\n", summary.FinalRewardEMA)
	fmt.Fprintf(&b, "- Heat average delta: %+.4f, max delta: %+.4f\n", summary.HeatTrend.AvgDelta, summary.HeatTrend.MaxDelta)
	fmt.Fprintf(&b, "- Max territories observed: %d\n", summary.TerritorySpan)
	fmt.Fprintf(&b, "- Frontier at end of run: %d\n", summary.FinalFrontier)
	fmt.Fprintf(&b, "- Status: %s\n", strings.ToUpper(summary.Status))
	if len(summary.EventTotals) > 0 {
		b.WriteString("- Event totals:\n")
		keys := make([]string, 0, len(summary.EventTotals))
		for k := range summary.EventTotals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  - %s: %d\n", k, summary.EventTotals[k])
		}
	} else {
		b.WriteString("- Event totals: none\n")
	}

	b.WriteString("- Thresholds:\n")
	fmt.Fprintf(&b, "  - max_avg_heat_delta: %v\n", summary.Thresholds.MaxAvgHeatDelta)
	fmt.Fprintf(&b, "  - max_heat: %v\n", summary.Thresholds.MaxHeat)
	fmt.Fprintf(&b, "  - min_reward_ema: %v\n", summary.Thresholds.MinRewardEMA)

	b.WriteString("\n## Anomalies\n\n")
	if len(summary.Anomalies) > 0 {
		for _, a := range summary.Anomalies {
			fmt.Fprintf(&b, "- **%s** %s (%s): %s\n", strings.ToUpper(a.Severity), a.Metric, a.Sample, a.Message)
		}
	} else {
		b.WriteString("- None detected.\n")
	}

	b.WriteString(fmt.Sprintf("\nGenerated %s\n", report.GeneratedAt))
	return b.String()
}
