// voidmem-telemetry is the nightly probe CLI, porting
// original_source/scripts/nightly_telemetry.py: it drives a manager
// through a deterministic reinforcement/degradation window, writes a JSON
// and Markdown report, records the run in the report-history store, and
// exits 2 if anomalies were detected.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vthunder/voidmem/internal/telemetry"
	"github.com/vthunder/voidmem/internal/telemetry/reporthistory"
	"github.com/vthunder/voidmem/internal/voidconfig"
	"github.com/vthunder/voidmem/internal/voidmem"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "Optional path to a persisted manager snapshot.")
	configPath := flag.String("config", "", "Optional YAML file overriding construction parameters for a fresh manager.")
	outputPath := flag.String("output", "reports/void-telemetry-latest.json", "Where to write the JSON telemetry report.")
	markdownPath := flag.String("markdown", "reports/void-telemetry-latest.md", "Where to write the Markdown trend summary.")
	historyPath := flag.String("history-db", "reports/void-telemetry-history.db", "Path to the SQLite report-history store.")
	iterations := flag.Int("iterations", telemetry.DefaultProbeConfig().Iterations, "Number of reinforcement windows to simulate.")
	batchSize := flag.Int("batch-size", telemetry.DefaultProbeConfig().BatchSize, "Number of memories to reinforce per window.")
	degradeInterval := flag.Int("degrade-interval", telemetry.DefaultProbeConfig().DegradeInterval, "Frequency (in windows) to inject degradation backpressure.")
	ttlFloor := flag.Int("ttl-floor", telemetry.DefaultProbeConfig().TTLFloor, "TTL floor to apply during degradation events.")
	heatGain := flag.Float64("heat-gain", telemetry.DefaultProbeConfig().HeatGain, "Heat gain applied during reinforcement windows.")
	ttlBoost := flag.Int("ttl-boost", telemetry.DefaultProbeConfig().TTLBoost, "TTL boost applied during reinforcement windows.")
	rewardFloor := flag.Float64("reward-floor", -1, "Override the minimum acceptable final reward EMA before alerting.")
	maxAvgHeatDelta := flag.Float64("max-avg-heat-delta", -1, "Override the maximum acceptable change in average heat across the run.")
	maxHeat := flag.Float64("max-heat", -1, "Override the maximum acceptable instantaneous heat level.")
	flag.Parse()

	cfg := voidconfig.Defaults()
	if *configPath != "" {
		loaded, err := voidconfig.LoadYAML(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voidmem-telemetry: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var m *voidmem.Manager
	if *snapshotPath != "" {
		m = voidmem.LoadJSON(*snapshotPath, cfg)
	}
	if m == nil {
		var err error
		m, err = voidmem.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voidmem-telemetry: failed to construct manager: %v\n", err)
			os.Exit(1)
		}
		bootstrapMemory(m)
	}

	thresholds := telemetry.DefaultThresholds()
	if *rewardFloor >= 0 {
		thresholds.MinRewardEMA = *rewardFloor
	}
	if *maxAvgHeatDelta >= 0 {
		thresholds.MaxAvgHeatDelta = *maxAvgHeatDelta
	}
	if *maxHeat >= 0 {
		thresholds.MaxHeat = *maxHeat
	}

	probeCfg := telemetry.ProbeConfig{
		Iterations:      *iterations,
		BatchSize:       *batchSize,
		DegradeInterval: *degradeInterval,
		TTLFloor:        *ttlFloor,
		HeatGain:        *heatGain,
		TTLBoost:        *ttlBoost,
	}

	report := telemetry.GenerateReport(m, probeCfg, thresholds)

	if err := writeReportFiles(report, *outputPath, *markdownPath); err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-telemetry: %v\n", err)
		os.Exit(1)
	}

	if err := recordHistory(report, *historyPath); err != nil {
		fmt.Fprintf(os.Stderr, "voidmem-telemetry: report-history write failed (non-fatal): %v\n", err)
	}

	anomalies := report.Summary.Anomalies
	if len(anomalies) > 0 {
		fmt.Fprintln(os.Stderr, "Detected telemetry anomalies during nightly probe:")
		for _, a := range anomalies {
			fmt.Fprintf(os.Stderr, "- [%s] %s at %s: %s\n", a.Severity, a.Metric, a.Sample, a.Message)
		}
		os.Exit(2)
	}
}

// bootstrapMemory seeds a fresh manager with a handful of varied traces so
// a from-scratch nightly run still has something to probe, mirroring
// _void_ops.bootstrap_memory's role in the Python script.
func bootstrapMemory(m *voidmem.Manager) {
	seeds := []string{
		"the quick brown fox jumps over the lazy dog",
		"void dynamics models memory as territories of related traces",
		"reinforcement strengthens confidence and mass while reducing novelty",
		"degradation caps ttl and nudges boredom upward under backpressure",
		"condensation folds saturated traces into a single summarizing engram",
		"frontier accounting tracks repeated high-novelty touches per trace",
	}
	ids := make([]string, len(seeds))
	for i := range seeds {
		ids[i] = uuid.NewString()
	}
	_ = m.RegisterChunks(ids, seeds, nil, nil)
}

func writeReportFiles(report telemetry.Report, outputPath, markdownPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}

	if markdownPath != "" {
		if err := os.MkdirAll(filepath.Dir(markdownPath), 0o755); err != nil {
			return fmt.Errorf("create markdown directory: %w", err)
		}
		if err := os.WriteFile(markdownPath, []byte(telemetry.RenderMarkdownReport(report)), 0o644); err != nil {
			return fmt.Errorf("write markdown report: %w", err)
		}
	}
	return nil
}

func recordHistory(report telemetry.Report, historyPath string) error {
	store, err := reporthistory.Open(historyPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reportJSON, err := reporthistory.MarshalReportJSON(report)
	if err != nil {
		return err
	}
	return store.Insert(uuid.NewString(), report.GeneratedAt, report.Summary.Status, len(report.Summary.Anomalies), reportJSON)
}
