// Package voidmem implements the Void Dynamics memory manager: the
// coupled state machine of trace lifecycle, territory assignment,
// reinforcement/degradation, maintenance cadence, condensation hand-off,
// event log, and persistence described by spec.md.
package voidmem

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/vthunder/voidmem/internal/eventlog"
	"github.com/vthunder/voidmem/internal/logging"
	"github.com/vthunder/voidmem/internal/maintenance"
	"github.com/vthunder/voidmem/internal/ring"
	"github.com/vthunder/voidmem/internal/territory"
	"github.com/vthunder/voidmem/internal/trace"
	"github.com/vthunder/voidmem/internal/voidconfig"
)

// CondenseFunc summarises a batch of texts pulled off the condensation
// queue. ok reports whether a usable (summaryID, summaryText) pair was
// produced; when false, the drained traces are not re-queued (spec.md §7).
type CondenseFunc func(texts []string) (summaryID, summaryText string, ok bool)

type frontierEntry struct {
	TerritoryID int
	Hits        int
	Novelty     float64
}

// Manager is the single logical unit of mutable state described by
// spec.md §5. No concurrency happens inside it; Config.ThreadSafe only
// selects whether a mutex serialises callers.
type Manager struct {
	cfg        voidconfig.Config
	lock       lockStrategy

	tick int
	mem  map[string]*trace.Trace
	order []string // insertion order (id order for traces restored by FromDict), used as the base for seeded prune shuffles

	territories *territory.Engine
	events      *eventlog.Log

	engrams      map[string][]string
	engramOrder  []string
	frontier     map[string]*frontierEntry

	pairChurn map[string]*ring.Int
	pairLast  map[string]int
	pairOrder []string

	rewardEMA       float64
	explorationTemp float64
	rng             *rand.Rand

	condenseCallback CondenseFunc
	condenseQueue    []string // ids pending condensation, insertion order
}

// lockStrategy abstracts "no locking" vs "mutex-guarded" per spec.md §5.
type lockStrategy interface {
	Lock()
	Unlock()
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// New constructs a Manager, validating cfg per spec.md §6. Invalid values
// fail construction with a *voidconfig.ConfigError naming the field.
func New(cfg voidconfig.Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var seed int64
	if cfg.Seed != nil {
		seed = *cfg.Seed
	} else {
		seed = time.Now().UnixNano()
	}

	m := &Manager{
		cfg:             cfg,
		mem:             make(map[string]*trace.Trace),
		territories:     territory.New(),
		events:          eventlog.New(),
		engrams:         make(map[string][]string),
		frontier:        make(map[string]*frontierEntry),
		pairChurn:       make(map[string]*ring.Int),
		pairLast:        make(map[string]int),
		rng:             rand.New(rand.NewSource(seed)),
		explorationTemp: 1.0,
	}
	if cfg.ThreadSafe {
		m.lock = &mutexLock{}
	} else {
		m.lock = noLock{}
	}
	return m, nil
}

func (m *Manager) emit(typ string, payload map[string]any) {
	m.events.Emit(typ, m.tick, payload)
}

// RegisterChunks implements spec.md §4.A's register operation for a
// length-aligned batch. embeddings and metadata may be nil (meaning "not
// supplied for any id"); if non-nil they must match ids in length.
func (m *Manager) RegisterChunks(ids, texts []string, embeddings [][]float64, metadata []map[string]any) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("voidmem: register_chunks: ids and raw_texts length mismatch (%d vs %d)", len(ids), len(texts))
	}
	if embeddings != nil && len(embeddings) != len(ids) {
		return fmt.Errorf("voidmem: register_chunks: embeddings length mismatch (%d vs %d)", len(embeddings), len(ids))
	}
	if metadata != nil && len(metadata) != len(ids) {
		return fmt.Errorf("voidmem: register_chunks: metadata length mismatch (%d vs %d)", len(metadata), len(ids))
	}

	m.lock.Lock()
	for i, id := range ids {
		var emb []float64
		if embeddings != nil {
			emb = embeddings[i]
		}
		var md map[string]any
		if metadata != nil {
			md = metadata[i]
		}
		m.registerOne(id, texts[i], emb, md)
	}
	drained := m.drainCondensationLocked()
	m.afterOperationLocked()
	m.lock.Unlock()

	m.dispatchCondensation(drained)
	return nil
}

func (m *Manager) registerOne(id, text string, embedding []float64, metadata map[string]any) {
	if _, exists := m.mem[id]; exists {
		logging.Debug("voidmem", "register_chunks: duplicate id %q ignored", id)
		return
	}

	tid, created := m.territories.Assign(text, embedding)
	if created {
		m.emit("territory_create", map[string]any{"id": tid})
	}

	var emb []float64
	if embedding != nil {
		emb = territory.Normalize(embedding)
	}

	territoryID := tid
	tr := &trace.Trace{
		ID:            id,
		Text:          text,
		Embedding:     emb,
		Metadata:      metadata,
		TerritoryID:   &territoryID,
		Confidence:    0.35,
		Novelty:       trace.EstimateNovelty(text),
		Boredom:       0,
		Mass:          1,
		Heat:          0,
		TTL:           m.cfg.BaseTTL,
		LastTouchTick: m.tick,
	}
	tr.Clamp()
	m.mem[id] = tr
	m.order = append(m.order, id)
	if t := m.territories.Get(tid); t != nil {
		t.Count++
	}

	m.emit("register", map[string]any{"id": id, "territory": tid})
}

// Degrade implements spec.md §4.E. It does not advance the tick and does
// not trigger maintenance.
func (m *Manager) Degrade(ids []string, ttlFloor int) error {
	if ttlFloor < 1 {
		return fmt.Errorf("voidmem: degrade: ttl_floor must be >= 1, got %d", ttlFloor)
	}

	m.lock.Lock()
	count := 0
	for _, id := range ids {
		tr, ok := m.mem[id]
		if !ok {
			continue
		}
		if tr.TTL > ttlFloor {
			tr.TTL = ttlFloor
		}
		tr.Boredom += 0.1
		if tr.Boredom > 1 {
			tr.Boredom = 1
		}
		tr.Clamp()
		count++
	}
	m.emit("degrade", map[string]any{"count": count})
	m.lock.Unlock()
	return nil
}

// RegisterEngram implements spec.md §4.I. Returns false (no state change)
// if fewer than two members are found among the live trace store.
func (m *Manager) RegisterEngram(summaryID string, memberIDs []string, text string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	var survivors []string
	for _, id := range memberIDs {
		if _, ok := m.mem[id]; ok {
			survivors = append(survivors, id)
		}
	}
	if len(survivors) < 2 {
		return false
	}

	m.engrams[summaryID] = survivors
	m.engramOrder = append(m.engramOrder, summaryID)

	for _, id := range survivors {
		tr := m.mem[id]
		tr.Boredom += 0.05
		tr.Inhibition += 0.05
		tr.Clamp()
	}

	m.emit("engram", map[string]any{"id": summaryID, "members": survivors})
	return true
}

// SetCondenseCallback installs (or clears, with nil) the external
// summariser invoked by the condensation hand-off (spec.md §4.F).
func (m *Manager) SetCondenseCallback(fn CondenseFunc) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.condenseCallback = fn
}

// drainCondensationLocked implements spec.md §4.F's drain step: it must
// be called while the lock is held.
func (m *Manager) drainCondensationLocked() []condenseItem {
	if len(m.condenseQueue) == 0 {
		return nil
	}
	items := make([]condenseItem, 0, len(m.condenseQueue))
	for _, id := range m.condenseQueue {
		tr, ok := m.mem[id]
		if !ok {
			continue
		}
		items = append(items, condenseItem{ID: id, Text: tr.Text})
		tr.PendingCondense = false
	}
	m.condenseQueue = nil
	return items
}

type condenseItem struct {
	ID   string
	Text string
}

// dispatchCondensation implements spec.md §4.F's callback step: it must
// run after the lock has been released.
func (m *Manager) dispatchCondensation(drained []condenseItem) {
	if m.condenseCallback == nil || len(drained) == 0 {
		return
	}

	texts := make([]string, len(drained))
	for i, it := range drained {
		texts[i] = it.Text
	}

	summaryID, summaryText, ok := m.safeCondense(texts)
	if !ok {
		return
	}

	_ = m.RegisterChunks([]string{summaryID}, []string{summaryText}, nil, nil)
}

func (m *Manager) safeCondense(texts []string) (id, text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.Debug("voidmem", "condense callback panicked: %v", r)
			ok = false
		}
	}()
	return m.condenseCallback(texts)
}

// afterOperationLocked runs spec.md §4.C's maintenance cadence. Must be
// called while the lock is held; events it emits carry the
// post-increment tick per spec.md §5's ordering guarantee.
func (m *Manager) afterOperationLocked() {
	m.tick++
	m.decayPassLocked()
	m.pruneIfNeededLocked()
	if m.tick%m.cfg.DiffusionInterval == 0 {
		m.diffuseLocked()
	}
	if m.explorationTemp > 1.0 {
		m.explorationTemp = 1.0
	}
}

func (m *Manager) decayPassLocked() {
	factor := maintenance.DecayFactor(m.cfg.DecayHalfLife)
	var evicted []string
	for _, id := range m.order {
		tr, ok := m.mem[id]
		if !ok {
			continue
		}
		tr.Heat *= factor
		if tr.TTL > 0 {
			tr.TTL--
		}
		tr.Inhibition *= maintenance.InhibitionDecay
		tr.Clamp()
		if tr.TTL == 0 && tr.Confidence < 0.05 && tr.Mass < 3.0 {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		m.removeTraceLocked(id)
		m.emit("evict", map[string]any{"id": id})
	}
}

func (m *Manager) removeTraceLocked(id string) {
	tr, ok := m.mem[id]
	if !ok {
		return
	}
	if tr.TerritoryID != nil {
		if t := m.territories.Get(*tr.TerritoryID); t != nil {
			t.Count--
			if t.Count <= 0 {
				m.territories.Remove(t.ID)
			}
		}
	}
	delete(m.mem, id)
	delete(m.frontier, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) pruneIfNeededLocked() {
	target := maintenance.PruneTarget(len(m.mem), m.cfg.Capacity, m.cfg.PruneTargetRatio)
	if target == 0 {
		return
	}

	scores := make(map[string]float64, len(m.order))
	for _, id := range m.order {
		scores[id] = m.compositeScoreLocked(m.mem[id])
	}

	victims := maintenance.SelectPruneVictims(m.order, scores, m.rng, m.cfg.PruneSample, target)
	for _, id := range victims {
		m.removeTraceLocked(id)
	}
	m.emit("prune", map[string]any{"count": len(victims)})
}

func (m *Manager) diffuseLocked() {
	ev := m.territories.Diffuse(m.rng, m.cfg.DiffusionKappa)
	if ev == nil {
		return
	}
	for _, id := range m.order {
		tr := m.mem[id]
		if tr.TerritoryID != nil && *tr.TerritoryID == ev.From {
			newID := ev.To
			tr.TerritoryID = &newID
		}
	}
	m.emit("territory_merge", map[string]any{"from": ev.From, "to": ev.To})
}

func pairKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func distinctSortedInts(vals []int) []int {
	seen := make(map[int]struct{}, len(vals))
	var out []int
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
