package voidmem

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/vthunder/voidmem/internal/logging"
	"github.com/vthunder/voidmem/internal/territory"
	"github.com/vthunder/voidmem/internal/trace"
	"github.com/vthunder/voidmem/internal/voidconfig"
)

const snapshotVersion = 1

type frontierDict struct {
	TerritoryID int     `json:"territory_id"`
	Hits        int     `json:"hits"`
	Novelty     float64 `json:"novelty"`
}

// Snapshot is the JSON-serialisable form of a Manager's full state, per
// spec.md §6's snapshot format.
type Snapshot struct {
	Version               int                        `json:"version"`
	Tick                  int                         `json:"tick"`
	Mem                   map[string]*trace.Trace     `json:"mem"`
	Engrams               map[string][]string         `json:"engrams"`
	Frontier              map[string]frontierDict     `json:"frontier"`
	NextTerritory         int                         `json:"next_territory"`
	RewardEMA             float64                     `json:"reward_ema"`
	PairChurn             map[string][]int            `json:"pair_churn"`
	PairLast              map[string]int              `json:"pair_last"`
	TerritoryCentroids    map[string][]float64         `json:"territory_centroids"`
	TerritoryCounts       map[string]int               `json:"territory_counts"`
	TerritoryMemberDists  map[string][]float64         `json:"territory_member_dists"`
	NNDistances           []float64                    `json:"nn_distances"`
	TerritoryTau          float64                      `json:"territory_tau"`
	SplitCounter          int                          `json:"split_counter"`
	MergeCounter          int                          `json:"merge_counter"`
	Config                map[string]any                `json:"config"`
}

func configToDict(cfg voidconfig.Config) map[string]any {
	seed := any(nil)
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	return map[string]any{
		"capacity":                    cfg.Capacity,
		"base_ttl":                    cfg.BaseTTL,
		"decay_half_life":             cfg.DecayHalfLife,
		"prune_sample":                cfg.PruneSample,
		"prune_target_ratio":          cfg.PruneTargetRatio,
		"thread_safe":                 cfg.ThreadSafe,
		"seed":                        seed,
		"recency_half_life_ticks":     cfg.RecencyHalfLifeTicks,
		"habituation_start":           cfg.HabituationStart,
		"habituation_scale":           cfg.HabituationScale,
		"boredom_weight":              cfg.BoredomWeight,
		"frontier_novelty_threshold":  cfg.FrontierNoveltyThreshold,
		"frontier_patience":           cfg.FrontierPatience,
		"diffusion_interval":          cfg.DiffusionInterval,
		"diffusion_kappa":             cfg.DiffusionKappa,
		"exploration_churn_window":    cfg.ExplorationChurnWindow,
		"condensation_boredom":        cfg.CondensationBoredom,
		"condensation_conf":           cfg.CondensationConf,
		"condensation_mass":           cfg.CondensationMass,
	}
}

// ToDict exports the manager's full state as a Snapshot (spec.md §6's
// to_dict).
func (m *Manager) ToDict() Snapshot {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.toDictLocked()
}

func (m *Manager) toDictLocked() Snapshot {
	mem := make(map[string]*trace.Trace, len(m.mem))
	for id, tr := range m.mem {
		cp := *tr
		mem[id] = &cp
	}

	engrams := make(map[string][]string, len(m.engrams))
	for id, members := range m.engrams {
		engrams[id] = append([]string(nil), members...)
	}

	frontier := make(map[string]frontierDict, len(m.frontier))
	for id, fe := range m.frontier {
		frontier[id] = frontierDict{TerritoryID: fe.TerritoryID, Hits: fe.Hits, Novelty: fe.Novelty}
	}

	pairChurn := make(map[string][]int, len(m.pairChurn))
	for key, win := range m.pairChurn {
		pairChurn[key] = win.Values()
	}
	pairLast := make(map[string]int, len(m.pairLast))
	for k, v := range m.pairLast {
		pairLast[k] = v
	}

	tSnap := m.territories.Export()
	centroids := make(map[string][]float64, len(tSnap.Centroids))
	for id, c := range tSnap.Centroids {
		centroids[strconv.Itoa(id)] = c
	}
	counts := make(map[string]int, len(tSnap.Counts))
	for id, c := range tSnap.Counts {
		counts[strconv.Itoa(id)] = c
	}
	memberDists := make(map[string][]float64, len(tSnap.MemberDists))
	for id, d := range tSnap.MemberDists {
		memberDists[strconv.Itoa(id)] = d
	}

	return Snapshot{
		Version:              snapshotVersion,
		Tick:                 m.tick,
		Mem:                  mem,
		Engrams:              engrams,
		Frontier:             frontier,
		NextTerritory:        tSnap.NextTerritory,
		RewardEMA:            m.rewardEMA,
		PairChurn:            pairChurn,
		PairLast:             pairLast,
		TerritoryCentroids:   centroids,
		TerritoryCounts:      counts,
		TerritoryMemberDists: memberDists,
		NNDistances:          tSnap.NNDistances,
		TerritoryTau:         tSnap.Tau,
		SplitCounter:         tSnap.SplitCounter,
		MergeCounter:         tSnap.MergeCounter,
		Config:               configToDict(m.cfg),
	}
}

// FromDict rebuilds a Manager from a Snapshot, skipping malformed entries
// rather than failing, per spec.md §7.
func FromDict(snap Snapshot, cfg voidconfig.Config) (*Manager, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.tick = snap.Tick
	m.rewardEMA = snap.RewardEMA

	memIDs := make([]string, 0, len(snap.Mem))
	for id := range snap.Mem {
		memIDs = append(memIDs, id)
	}
	sort.Strings(memIDs)
	for _, id := range memIDs {
		tr := snap.Mem[id]
		if tr == nil {
			continue
		}
		cp := *tr
		cp.ID = id
		cp.Clamp()
		m.mem[id] = &cp
		m.order = append(m.order, id)
	}

	for id, members := range snap.Engrams {
		if len(members) < 2 {
			continue
		}
		m.engrams[id] = append([]string(nil), members...)
		m.engramOrder = append(m.engramOrder, id)
	}

	for id, fe := range snap.Frontier {
		m.frontier[id] = &frontierEntry{TerritoryID: fe.TerritoryID, Hits: fe.Hits, Novelty: fe.Novelty}
	}

	for key, ticks := range snap.PairChurn {
		win := newPairWindow(cfg.ExplorationChurnWindow)
		win.LoadFrom(ticks)
		m.pairChurn[key] = win
		m.pairOrder = append(m.pairOrder, key)
	}
	for key, tick := range snap.PairLast {
		m.pairLast[key] = tick
	}

	counts := make(map[int]int)
	for key, c := range snap.TerritoryCounts {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		counts[id] = c
	}
	centroids := make(map[int][]float64)
	for key, c := range snap.TerritoryCentroids {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		centroids[id] = c
	}
	memberDists := make(map[int][]float64)
	for key, d := range snap.TerritoryMemberDists {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		memberDists[id] = d
	}

	m.territories = territory.Restore(territory.Snapshot{
		NextTerritory: snap.NextTerritory,
		Centroids:     centroids,
		Counts:        counts,
		MemberDists:   memberDists,
		NNDistances:   snap.NNDistances,
		Tau:           snap.TerritoryTau,
		SplitCounter:  snap.SplitCounter,
		MergeCounter:  snap.MergeCounter,
	})

	return m, nil
}

// SaveJSON writes the manager's snapshot to path, returning false on any
// I/O error rather than propagating it (spec.md §7).
func (m *Manager) SaveJSON(path string) bool {
	snap := m.ToDict()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logging.Debug("voidmem", "save_json: marshal failed: %v", err)
		return false
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.Debug("voidmem", "save_json: write failed: %v", err)
		return false
	}
	return true
}

// LoadJSON reads and reconstructs a manager from path, returning nil on
// any parse or structural error (spec.md §7). cfg supplies the
// construction parameters the reconstructed manager is built against;
// callers generally want to pass the persisted config's values back in.
func LoadJSON(path string, cfg voidconfig.Config) *Manager {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	m, err := FromDict(snap, cfg)
	if err != nil {
		return nil
	}
	return m
}

// ConfigFromDict rebuilds a voidconfig.Config from a persisted config
// echo, falling back to declared defaults for missing keys (spec.md §6).
func ConfigFromDict(raw map[string]any) voidconfig.Config {
	cfg := voidconfig.Defaults()
	get := func(key string) (any, bool) {
		v, ok := raw[key]
		return v, ok
	}
	asInt := func(v any) (int, bool) {
		switch x := v.(type) {
		case float64:
			return int(x), true
		case int:
			return x, true
		}
		return 0, false
	}
	asFloat := func(v any) (float64, bool) {
		switch x := v.(type) {
		case float64:
			return x, true
		case int:
			return float64(x), true
		}
		return 0, false
	}

	if v, ok := get("capacity"); ok {
		if n, ok := asInt(v); ok {
			cfg.Capacity = n
		}
	}
	if v, ok := get("base_ttl"); ok {
		if n, ok := asInt(v); ok {
			cfg.BaseTTL = n
		}
	}
	if v, ok := get("decay_half_life"); ok {
		if n, ok := asInt(v); ok {
			cfg.DecayHalfLife = n
		}
	}
	if v, ok := get("prune_sample"); ok {
		if n, ok := asInt(v); ok {
			cfg.PruneSample = n
		}
	}
	if v, ok := get("prune_target_ratio"); ok {
		if f, ok := asFloat(v); ok {
			cfg.PruneTargetRatio = f
		}
	}
	if v, ok := get("thread_safe"); ok {
		if b, ok := v.(bool); ok {
			cfg.ThreadSafe = b
		}
	}
	if v, ok := get("seed"); ok && v != nil {
		if f, ok := asFloat(v); ok {
			seed := int64(f)
			cfg.Seed = &seed
		}
	}
	if v, ok := get("recency_half_life_ticks"); ok {
		if n, ok := asInt(v); ok {
			cfg.RecencyHalfLifeTicks = n
		}
	}
	if v, ok := get("habituation_start"); ok {
		if n, ok := asInt(v); ok {
			cfg.HabituationStart = n
		}
	}
	if v, ok := get("habituation_scale"); ok {
		if f, ok := asFloat(v); ok {
			cfg.HabituationScale = f
		}
	}
	if v, ok := get("boredom_weight"); ok {
		if f, ok := asFloat(v); ok {
			cfg.BoredomWeight = f
		}
	}
	if v, ok := get("frontier_novelty_threshold"); ok {
		if f, ok := asFloat(v); ok {
			cfg.FrontierNoveltyThreshold = f
		}
	}
	if v, ok := get("frontier_patience"); ok {
		if n, ok := asInt(v); ok {
			cfg.FrontierPatience = n
		}
	}
	if v, ok := get("diffusion_interval"); ok {
		if n, ok := asInt(v); ok {
			cfg.DiffusionInterval = n
		}
	}
	if v, ok := get("diffusion_kappa"); ok {
		if f, ok := asFloat(v); ok {
			cfg.DiffusionKappa = f
		}
	}
	if v, ok := get("exploration_churn_window"); ok {
		if n, ok := asInt(v); ok {
			cfg.ExplorationChurnWindow = n
		}
	}
	if v, ok := get("condensation_boredom"); ok {
		if f, ok := asFloat(v); ok {
			cfg.CondensationBoredom = f
		}
	}
	if v, ok := get("condensation_conf"); ok {
		if f, ok := asFloat(v); ok {
			cfg.CondensationConf = f
		}
	}
	if v, ok := get("condensation_mass"); ok {
		if f, ok := asFloat(v); ok {
			cfg.CondensationMass = f
		}
	}
	return cfg
}
