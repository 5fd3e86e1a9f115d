package voidmem

import (
	"math"
	"sort"

	"github.com/vthunder/voidmem/internal/eventlog"
	"github.com/vthunder/voidmem/internal/trace"
)

// compositeScoreLocked implements spec.md §4.H's composite_score.
func (m *Manager) compositeScoreLocked(tr *trace.Trace) float64 {
	dt := m.tick - tr.LastTouchTick
	if dt < 0 {
		dt = 0
	}
	halfLife := m.cfg.RecencyHalfLifeTicks
	if halfLife < 1 {
		halfLife = 1
	}
	recency := math.Exp(-math.Ln2 * float64(dt) / float64(halfLife))

	score := tr.Confidence*(1-m.cfg.BoredomWeight) + tr.Novelty*m.cfg.BoredomWeight + 0.1*tr.Heat + recency
	if score < 0 {
		score = 0
	}
	return score
}

// CompositeScoreFor returns the composite score for id, or (0, false) if
// the id is unknown.
func (m *Manager) CompositeScoreFor(id string) (float64, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	tr, ok := m.mem[id]
	if !ok {
		return 0, false
	}
	return m.compositeScoreLocked(tr), true
}

// ExploratoryWeight implements spec.md §4.H's exploratory_weight.
func (m *Manager) ExploratoryWeight(id string) (float64, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	tr, ok := m.mem[id]
	if !ok {
		return 0, false
	}
	w := tr.Novelty * (1 - tr.Boredom)
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return w, true
}

// ScoredID pairs an id with its composite score, as returned by Top.
type ScoredID struct {
	ID    string
	Score float64
}

// Top implements spec.md §4.H's top(k): k is clamped to [1,100]; scores
// are computed under the lock and sorted descending outside it.
func (m *Manager) Top(k int) []ScoredID {
	if k < 1 {
		k = 1
	}
	if k > 100 {
		k = 100
	}

	m.lock.Lock()
	scored := make([]ScoredID, 0, len(m.order))
	for _, id := range m.order {
		scored = append(scored, ScoredID{ID: id, Score: m.compositeScoreLocked(m.mem[id])})
	}
	m.lock.Unlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Stats summarises the store's aggregate state.
type Stats struct {
	Count         int
	AvgConfidence float64
	AvgNovelty    float64
	AvgBoredom    float64
	AvgMass       float64
}

// Stats implements spec.md §4.H's stats(); an empty store yields zeros.
func (m *Manager) Stats() Stats {
	m.lock.Lock()
	defer m.lock.Unlock()

	n := len(m.mem)
	if n == 0 {
		return Stats{}
	}

	var conf, nov, bor, mass float64
	for _, tr := range m.mem {
		conf += tr.Confidence
		nov += tr.Novelty
		bor += tr.Boredom
		mass += tr.Mass
	}
	f := float64(n)
	return Stats{Count: n, AvgConfidence: conf / f, AvgNovelty: nov / f, AvgBoredom: bor / f, AvgMass: mass / f}
}

// ConsumeEvents returns and clears the event log (spec.md §4.G).
func (m *Manager) ConsumeEvents() []eventlog.Event {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.events.Consume()
}

// PeekEvents returns the oldest k events without clearing the log.
func (m *Manager) PeekEvents(k int) []eventlog.Event {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.events.Peek(k)
}

// RewardEMA returns the current reward exponential moving average.
func (m *Manager) RewardEMA() float64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rewardEMA
}

// Tick returns the current tick counter.
func (m *Manager) Tick() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.tick
}

// Len returns the number of live traces.
func (m *Manager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.mem)
}
