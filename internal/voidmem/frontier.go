package voidmem

import (
	"github.com/vthunder/voidmem/internal/ring"
	"github.com/vthunder/voidmem/internal/territory"
)

func newPairWindow(capacity int) *ring.Int { return ring.NewInt(capacity) }

// frontierAccountingLocked implements spec.md §4.D step 7.
func (m *Manager) frontierAccountingLocked(id string) {
	tr, ok := m.mem[id]
	if !ok {
		return
	}

	if tr.Novelty >= m.cfg.FrontierNoveltyThreshold && tr.Boredom < 0.5 {
		tr.FrontierHits++
		territoryID := -1
		if tr.TerritoryID != nil {
			territoryID = *tr.TerritoryID
		}
		m.frontier[id] = &frontierEntry{TerritoryID: territoryID, Hits: tr.FrontierHits, Novelty: tr.Novelty}

		if tr.FrontierHits >= m.cfg.FrontierPatience {
			if tr.TerritoryID != nil {
				m.maybeSplitLocked(id, *tr.TerritoryID)
			}
			tr.FrontierHits = 0
			m.frontier[id].Hits = 0
		}
		return
	}

	tr.FrontierHits = 0
	delete(m.frontier, id)
}

// maybeSplitLocked implements spec.md §4.B's split routine, triggered
// when triggerID's frontier_hits reaches frontier_patience.
func (m *Manager) maybeSplitLocked(triggerID string, territoryID int) {
	var members []territory.MemberInfo
	for _, id := range m.order {
		tr := m.mem[id]
		if tr.TerritoryID == nil || *tr.TerritoryID != territoryID {
			continue
		}
		members = append(members, territory.MemberInfo{
			ID:        id,
			Embedding: tr.Embedding,
			Novelty:   tr.Novelty,
			Boredom:   tr.Boredom,
		})
	}

	result, ok := m.territories.Split(territoryID, members)
	if !ok {
		return
	}

	for _, id := range result.Reassigned {
		newID := result.NewTerritoryID
		m.mem[id].TerritoryID = &newID
	}

	m.emit("territory_split", map[string]any{
		"from":  territoryID,
		"to":    result.NewTerritoryID,
		"count": len(result.Reassigned),
	})
}

// condensationCheckLocked implements spec.md §4.D step 8.
func (m *Manager) condensationCheckLocked(id string) {
	tr, ok := m.mem[id]
	if !ok {
		return
	}
	if tr.PendingCondense {
		return
	}
	if tr.Boredom >= m.cfg.CondensationBoredom &&
		tr.Confidence >= m.cfg.CondensationConf &&
		tr.Mass >= m.cfg.CondensationMass {
		tr.PendingCondense = true
		m.condenseQueue = append(m.condenseQueue, id)
	}
}
