package voidconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors Config with yaml tags and pointer/optional semantics,
// the same declare-then-merge-over-defaults shape the teacher's reflex
// engine uses for its YAML-defined rule files (internal/reflex/types.go).
// Only fields present in the document override Defaults().
type yamlConfig struct {
	Capacity                 *int     `yaml:"capacity"`
	BaseTTL                  *int     `yaml:"base_ttl"`
	DecayHalfLife            *int     `yaml:"decay_half_life"`
	PruneSample              *int     `yaml:"prune_sample"`
	PruneTargetRatio         *float64 `yaml:"prune_target_ratio"`
	ThreadSafe               *bool    `yaml:"thread_safe"`
	Seed                     *int64   `yaml:"seed"`
	RecencyHalfLifeTicks     *int     `yaml:"recency_half_life_ticks"`
	HabituationStart         *int     `yaml:"habituation_start"`
	HabituationScale         *float64 `yaml:"habituation_scale"`
	BoredomWeight            *float64 `yaml:"boredom_weight"`
	FrontierNoveltyThreshold *float64 `yaml:"frontier_novelty_threshold"`
	FrontierPatience         *int     `yaml:"frontier_patience"`
	DiffusionInterval        *int     `yaml:"diffusion_interval"`
	DiffusionKappa           *float64 `yaml:"diffusion_kappa"`
	ExplorationChurnWindow   *int     `yaml:"exploration_churn_window"`
	CondensationBoredom      *float64 `yaml:"condensation_boredom"`
	CondensationConf         *float64 `yaml:"condensation_conf"`
	CondensationMass         *float64 `yaml:"condensation_mass"`
}

// LoadYAML reads a YAML document of construction parameters and merges it
// over Defaults(), so a config file only needs to name the fields it wants
// to override. The result is validated before being returned.
func LoadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("voidconfig: read %s: %w", path, err)
	}

	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("voidconfig: parse %s: %w", path, err)
	}

	cfg := Defaults()
	applyYAML(&cfg, doc)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, doc yamlConfig) {
	if doc.Capacity != nil {
		cfg.Capacity = *doc.Capacity
	}
	if doc.BaseTTL != nil {
		cfg.BaseTTL = *doc.BaseTTL
	}
	if doc.DecayHalfLife != nil {
		cfg.DecayHalfLife = *doc.DecayHalfLife
	}
	if doc.PruneSample != nil {
		cfg.PruneSample = *doc.PruneSample
	}
	if doc.PruneTargetRatio != nil {
		cfg.PruneTargetRatio = *doc.PruneTargetRatio
	}
	if doc.ThreadSafe != nil {
		cfg.ThreadSafe = *doc.ThreadSafe
	}
	if doc.Seed != nil {
		cfg.Seed = doc.Seed
	}
	if doc.RecencyHalfLifeTicks != nil {
		cfg.RecencyHalfLifeTicks = *doc.RecencyHalfLifeTicks
	}
	if doc.HabituationStart != nil {
		cfg.HabituationStart = *doc.HabituationStart
	}
	if doc.HabituationScale != nil {
		cfg.HabituationScale = *doc.HabituationScale
	}
	if doc.BoredomWeight != nil {
		cfg.BoredomWeight = *doc.BoredomWeight
	}
	if doc.FrontierNoveltyThreshold != nil {
		cfg.FrontierNoveltyThreshold = *doc.FrontierNoveltyThreshold
	}
	if doc.FrontierPatience != nil {
		cfg.FrontierPatience = *doc.FrontierPatience
	}
	if doc.DiffusionInterval != nil {
		cfg.DiffusionInterval = *doc.DiffusionInterval
	}
	if doc.DiffusionKappa != nil {
		cfg.DiffusionKappa = *doc.DiffusionKappa
	}
	if doc.ExplorationChurnWindow != nil {
		cfg.ExplorationChurnWindow = *doc.ExplorationChurnWindow
	}
	if doc.CondensationBoredom != nil {
		cfg.CondensationBoredom = *doc.CondensationBoredom
	}
	if doc.CondensationConf != nil {
		cfg.CondensationConf = *doc.CondensationConf
	}
	if doc.CondensationMass != nil {
		cfg.CondensationMass = *doc.CondensationMass
	}
}
