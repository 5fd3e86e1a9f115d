package voidmem

import (
	"fmt"
	"math"
)

// Reinforce implements spec.md §4.D. ids and distances are row-aligned;
// row counts and per-row lengths must match.
func (m *Manager) Reinforce(ids [][]string, distances [][]float64, heatGain float64, ttlBoost int) error {
	if len(ids) != len(distances) {
		return fmt.Errorf("voidmem: reinforce: row count mismatch (%d ids rows vs %d distances rows)", len(ids), len(distances))
	}
	for i := range ids {
		if len(ids[i]) != len(distances[i]) {
			return fmt.Errorf("voidmem: reinforce: row %d length mismatch (%d ids vs %d distances)", i, len(ids[i]), len(distances[i]))
		}
	}

	m.lock.Lock()
	for r := range ids {
		m.reinforceRowLocked(ids[r], distances[r], heatGain, ttlBoost)
	}
	drained := m.drainCondensationLocked()
	m.afterOperationLocked()
	m.lock.Unlock()

	m.dispatchCondensation(drained)
	return nil
}

func (m *Manager) reinforceRowLocked(ids []string, distances []float64, heatGain float64, ttlBoost int) {
	var resolved []string
	var sims []float64
	for i, id := range ids {
		if _, ok := m.mem[id]; !ok {
			continue
		}
		resolved = append(resolved, id)
		sim := 1 - distances[i]
		if sim < 0 {
			sim = 0
		}
		sims = append(sims, sim)
	}
	if len(resolved) == 0 {
		return
	}

	for _, id := range resolved {
		tr := m.mem[id]
		tr.Inhibition += 0.05
		if tr.Inhibition > 1 {
			tr.Inhibition = 1
		}
	}

	var territoryIDs []int
	for _, id := range resolved {
		tr := m.mem[id]
		if tr.TerritoryID != nil {
			territoryIDs = append(territoryIDs, *tr.TerritoryID)
		}
	}
	m.recordPairMetricsLocked(territoryIDs)

	var simSum float64
	for _, s := range sims {
		simSum += s
	}
	meanSim := simSum / float64(len(sims))
	m.rewardEMA = 0.95*m.rewardEMA + 0.05*meanSim

	for i, id := range resolved {
		m.applyReinforcementToTraceLocked(id, sims[i], heatGain, ttlBoost)
	}

	m.emit("reinforce", map[string]any{"count": len(resolved)})
}

func (m *Manager) recordPairMetricsLocked(territoryIDs []int) {
	distinct := distinctSortedInts(territoryIDs)
	for i := 0; i < len(distinct); i++ {
		for j := i + 1; j < len(distinct); j++ {
			key := pairKey(distinct[i], distinct[j])
			win, ok := m.pairChurn[key]
			if !ok {
				win = newPairWindow(m.cfg.ExplorationChurnWindow)
				m.pairChurn[key] = win
				m.pairOrder = append(m.pairOrder, key)
			}
			win.Push(m.tick)
			m.pairLast[key] = m.tick
		}
	}
}

func (m *Manager) applyReinforcementToTraceLocked(id string, sim, heatGain float64, ttlBoost int) {
	tr := m.mem[id]

	tr.LastTouchTick = m.tick
	tr.UseCount++

	tr.Heat += heatGain
	tr.Mass += sim * (1 + heatGain)

	var deltaBoredom float64
	if tr.UseCount <= m.cfg.HabituationStart {
		deltaBoredom = 0.02
	} else {
		scale := math.Max(m.cfg.HabituationScale, float64(tr.UseCount))
		deltaBoredom = math.Min(0.2, float64(tr.UseCount)/scale*0.05)
	}
	tr.Boredom += deltaBoredom
	if tr.Boredom > 1 {
		tr.Boredom = 1
	}

	tr.Confidence += (1 - tr.Confidence) * sim * 0.3
	tr.Novelty = 0.9*tr.Novelty + 0.1*(1-sim)

	if ttlBoost > tr.TTL {
		tr.TTL = ttlBoost
	}
	if tr.TTL < 0 {
		tr.TTL = 0
	}
	tr.Clamp()

	if len(tr.Embedding) > 0 && tr.TerritoryID != nil {
		dist := 1 - sim
		m.territories.RecordMemberDistance(*tr.TerritoryID, dist)
	}

	m.frontierAccountingLocked(id)
	m.condensationCheckLocked(id)
}
