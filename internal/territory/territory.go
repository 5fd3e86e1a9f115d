// Package territory implements the territory engine (component B):
// embedding/hash-based trace clustering, the adaptive radius τ, diffusion
// merging, and frontier-driven splitting. See spec.md §4.B.
//
// Per spec.md §9's design notes the engine owns no back-pointers to the
// manager or to traces; callers pass in whatever trace-derived data a
// given operation needs and apply the returned membership changes back to
// their own trace store.
package territory

import (
	"encoding/hex"
	"math"
	"math/rand"
	"sort"

	"github.com/zeebo/blake3"
	"gonum.org/v1/gonum/floats"

	"github.com/vthunder/voidmem/internal/ring"
)

const (
	memberDistCapacity = 1024
	nnDistCapacity     = 5000
	warmupMaxTerritories = 50
	warmupMaxNN          = 1000
	tauMin = 0.05
	tauMax = 0.6
)

// Territory is a cluster of traces identified by a centroid in embedding
// space, or by a text-hash key alone when no embedding has ever been seen
// for it (Centroid is nil in that case).
type Territory struct {
	ID          int
	Centroid    []float64
	Count       int
	MemberDists *ring.Float
}

// Engine holds all territory-engine state for one manager instance.
type Engine struct {
	next      int
	byID      map[int]*Territory
	order     []int // insertion order, for deterministic iteration (spec.md §9)
	hashIndex map[string]int

	// centroidCount tracks territories with a non-nil Centroid, mirroring
	// the ground truth's len(manager._territory_centroids): hash-only
	// territories (no embedding ever seen) never count toward embedding
	// warm-up.
	centroidCount int

	nnDistances  *ring.Float
	tau          float64
	SplitCounter int
	MergeCounter int
}

// New creates an empty engine. Territory ids start at 10000 per spec.md §3.
func New() *Engine {
	return &Engine{
		next:        10000,
		byID:        make(map[int]*Territory),
		hashIndex:   make(map[string]int),
		nnDistances: ring.NewFloat(nnDistCapacity),
		tau:         0.2,
	}
}

// Tau returns the current adaptive clustering radius.
func (e *Engine) Tau() float64 { return e.tau }

// Get returns a territory by id, or nil if unknown.
func (e *Engine) Get(id int) *Territory { return e.byID[id] }

// Count returns the number of known territories.
func (e *Engine) Count() int { return len(e.byID) }

// Order returns territory ids in deterministic (insertion) order.
func (e *Engine) Order() []int {
	out := make([]int, len(e.order))
	copy(out, e.order)
	return out
}

// NNDistances exposes the underlying window (needed by persistence).
func (e *Engine) NNDistances() *ring.Float { return e.nnDistances }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// trueMedian matches Python's statistics.median: the average of the two
// middle elements for an even-length input.
func trueMedian(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// upperMedian is the single element at index len/2 of the sorted input —
// NOT a true statistical median for even-length inputs. split() in the
// original_source uses exactly this (sorted(x)[len(x)//2]), so it is
// reproduced here rather than "corrected", to preserve exact
// cross-implementation split-threshold behaviour.
func upperMedian(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func (e *Engine) recomputeTau() {
	if e.nnDistances.Len() == 0 {
		return
	}
	e.tau = clamp(trueMedian(e.nnDistances.Values()), tauMin, tauMax)
}

// l2Norm delegates to gonum's floats.Norm(v, 2), the teacher pack's chosen
// numerics library for vector operations (gonum.org/v1/gonum).
func l2Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// Normalize returns a copy of v scaled to unit L2 length; a zero vector is
// returned unchanged (norm 0 cannot be scaled).
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	n := l2Norm(out)
	if n == 0 {
		return out
	}
	floats.Scale(1/n, out)
	return out
}

func cosineDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot := floats.Dot(a[:n], b[:n])
	na, nb := l2Norm(a), l2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (na * nb)
	return 1 - sim
}

// hashText produces a deterministic 16-byte hex digest of text using
// BLAKE3 (in place of BLAKE2b, per spec.md §4.B.1's "or equivalent"),
// grounded in the teacher's generateShortID use of blake3.Sum256.
func hashText(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

func (e *Engine) allocate(centroid []float64) *Territory {
	id := e.next
	e.next++
	t := &Territory{ID: id, Centroid: centroid, MemberDists: ring.NewFloat(memberDistCapacity)}
	e.byID[id] = t
	e.order = append(e.order, id)
	if centroid != nil {
		e.centroidCount++
	}
	return t
}

// deleteTerritory pops id from byID/order and adjusts centroidCount. It
// does not touch hashIndex; callers decide whether to reparent or drop
// hash entries pointing at id.
func (e *Engine) deleteTerritory(id int) {
	if t, ok := e.byID[id]; ok {
		if t.Centroid != nil {
			e.centroidCount--
		}
		delete(e.byID, id)
	}
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Remove drops a territory entirely once its member count has reached
// zero, mirroring the ground truth _remove_memory's pop of the
// centroid/count/member-dist entries. It is a no-op for an unknown id.
func (e *Engine) Remove(id int) {
	e.deleteTerritory(id)
	for h, tid := range e.hashIndex {
		if tid == id {
			delete(e.hashIndex, h)
		}
	}
}

// Assign resolves text/embedding to a territory id, implementing
// spec.md §4.B's assign_territory. created reports whether a new
// territory was allocated (callers emit territory_create accordingly).
func (e *Engine) Assign(text string, embedding []float64) (id int, created bool) {
	if embedding == nil {
		h := hashText(text)
		if tid, ok := e.hashIndex[h]; ok {
			return tid, false
		}
		t := e.allocate(nil)
		e.hashIndex[h] = t.ID
		return t.ID, true
	}

	vec := Normalize(embedding)

	if e.nnDistances.Len() < warmupMaxNN && e.centroidCount < warmupMaxTerritories {
		t := e.allocate(vec)
		return t.ID, true
	}

	best := -1
	bestDist := math.MaxFloat64
	for _, tid := range e.order {
		t := e.byID[tid]
		if t.Centroid == nil {
			continue
		}
		d := cosineDistance(vec, t.Centroid)
		if d < bestDist {
			bestDist = d
			best = tid
		}
	}

	if best == -1 {
		t := e.allocate(vec)
		return t.ID, true
	}

	e.nnDistances.Push(bestDist)
	e.recomputeTau()

	if bestDist <= e.tau {
		t := e.byID[best]
		blended := make([]float64, len(vec))
		for i := range blended {
			var c float64
			if i < len(t.Centroid) {
				c = t.Centroid[i]
			}
			blended[i] = (c*float64(t.Count) + vec[i]) / float64(t.Count+1)
		}
		t.Centroid = Normalize(blended)
		return t.ID, false
	}

	t := e.allocate(vec)
	return t.ID, true
}

// RecordMemberDistance pushes a 1-sim distance into a territory's member
// window (spec.md §4.D.6) and refreshes nn_distances/τ alongside it.
func (e *Engine) RecordMemberDistance(territoryID int, dist float64) {
	if t, ok := e.byID[territoryID]; ok {
		t.MemberDists.Push(dist)
	}
	e.nnDistances.Push(dist)
	e.recomputeTau()
}

func (e *Engine) radius(t *Territory) float64 {
	return t.MemberDists.Max()
}

// MergeEvent reports a completed diffusion merge so the caller can
// reparent trace.TerritoryID fields (the engine has no trace knowledge).
type MergeEvent struct {
	From int
	To   int
}

// Diffuse runs at most one merge attempt per call, matching spec.md
// §4.B's "at most one merge per diffusion pass (loop exits on first
// accept)". Returns nil if no merge occurred.
func (e *Engine) Diffuse(rng *rand.Rand, kappa float64) *MergeEvent {
	ids := e.order
	tauPrime := math.Min(e.tau, tauMax)

	for i := 0; i < len(ids); i++ {
		a := e.byID[ids[i]]
		if a == nil || a.Centroid == nil {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b := e.byID[ids[j]]
			if b == nil || b.Centroid == nil {
				continue
			}
			d := cosineDistance(a.Centroid, b.Centroid)
			r := math.Max(e.radius(a), e.radius(b))
			candidate := d <= 0.5*e.tau && r <= 1.25*tauPrime && (a.Count+b.Count) < 500
			if !candidate {
				continue
			}

			draw := rng.Float64()
			if kappa < draw {
				// rejected; this pair's single allotted draw is spent,
				// the pass continues scanning other pairs
				continue
			}

			from, to, ok := e.merge(a.ID, b.ID)
			if !ok {
				return nil
			}
			e.MergeCounter++
			return &MergeEvent{From: from, To: to}
		}
	}
	return nil
}

// merge folds the smaller-count territory into the larger, per spec.md
// §4.B. Returns ok=false if the inner >1000 safety check rejects it.
func (e *Engine) merge(aID, bID int) (from, to int, ok bool) {
	a, b := e.byID[aID], e.byID[bID]
	small, large := a, b
	if a.Count > b.Count {
		small, large = b, a
	}

	if small.Count+large.Count > 1000 {
		return 0, 0, false
	}

	totalCount := small.Count + large.Count
	blended := make([]float64, len(large.Centroid))
	for i := range blended {
		var sc float64
		if i < len(small.Centroid) {
			sc = small.Centroid[i]
		}
		blended[i] = large.Centroid[i]*float64(large.Count) + sc*float64(small.Count)
	}
	if totalCount > 0 {
		for i := range blended {
			blended[i] /= float64(totalCount)
		}
	}
	large.Centroid = Normalize(blended)
	large.Count = totalCount

	for _, v := range small.MemberDists.Values() {
		large.MemberDists.Push(v)
	}

	e.deleteTerritory(small.ID)
	for h, tid := range e.hashIndex {
		if tid == small.ID {
			e.hashIndex[h] = large.ID
		}
	}

	return small.ID, large.ID, true
}

// MemberInfo is the subset of trace state the split routine needs,
// supplied by the caller in stored (insertion) order.
type MemberInfo struct {
	ID        string
	Embedding []float64
	Novelty   float64
	Boredom   float64
}

// SplitResult describes the outcome of a successful split.
type SplitResult struct {
	NewTerritoryID int
	Reassigned     []string
}

// Split implements spec.md §4.B's frontier-driven territory split. ok is
// false when the split preconditions (|M|>=6, 2<=|C|<|M|) are not met, in
// which case no state changes.
func (e *Engine) Split(currentTerritoryID int, members []MemberInfo) (*SplitResult, bool) {
	if len(members) < 6 {
		return nil, false
	}

	novelties := make([]float64, len(members))
	for i, m := range members {
		novelties[i] = m.Novelty
	}
	med := upperMedian(novelties)

	var candidates []MemberInfo
	for _, m := range members {
		if m.Novelty > med && m.Boredom < 0.7 {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) < 2 || len(candidates) >= len(members) {
		return nil, false
	}

	seed := candidates[0].Embedding
	newT := e.allocate(Normalize(seed))

	var sum []float64
	var n int
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(c.Embedding))
		}
		for i, x := range c.Embedding {
			if i < len(sum) {
				sum[i] += x
			}
		}
		n++
	}
	if n > 0 {
		for i := range sum {
			sum[i] /= float64(n)
		}
		newT.Centroid = Normalize(sum)
	}

	newT.Count = len(candidates)
	if cur, ok := e.byID[currentTerritoryID]; ok {
		cur.Count -= len(candidates)
		if cur.Count < 0 {
			cur.Count = 0
		}
	}

	reassigned := make([]string, len(candidates))
	for i, c := range candidates {
		reassigned[i] = c.ID
	}

	e.SplitCounter++
	return &SplitResult{NewTerritoryID: newT.ID, Reassigned: reassigned}, true
}

// Snapshot exports persistable territory state for to_dict().
type Snapshot struct {
	NextTerritory int
	Centroids     map[int][]float64
	Counts        map[int]int
	MemberDists   map[int][]float64
	NNDistances   []float64
	Tau           float64
	SplitCounter  int
	MergeCounter  int
}

// Export produces a Snapshot of current state.
func (e *Engine) Export() Snapshot {
	s := Snapshot{
		NextTerritory: e.next,
		Centroids:     make(map[int][]float64),
		Counts:        make(map[int]int),
		MemberDists:   make(map[int][]float64),
		NNDistances:   e.nnDistances.Values(),
		Tau:           e.tau,
		SplitCounter:  e.SplitCounter,
		MergeCounter:  e.MergeCounter,
	}
	for _, id := range e.order {
		t := e.byID[id]
		if t.Centroid != nil {
			s.Centroids[id] = t.Centroid
		}
		s.Counts[id] = t.Count
		s.MemberDists[id] = t.MemberDists.Values()
	}
	return s
}

// Restore replaces engine state from a persisted Snapshot, skipping
// malformed per-territory entries rather than failing outright (spec.md
// §7's lenient structural-error handling).
func Restore(s Snapshot) *Engine {
	e := New()
	e.next = s.NextTerritory
	e.tau = clamp(s.Tau, tauMin, tauMax)
	e.SplitCounter = s.SplitCounter
	e.MergeCounter = s.MergeCounter
	e.nnDistances.LoadFrom(s.NNDistances)

	ids := make([]int, 0, len(s.Counts))
	for id := range s.Counts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		t := &Territory{ID: id, Count: s.Counts[id], MemberDists: ring.NewFloat(memberDistCapacity)}
		if c, ok := s.Centroids[id]; ok {
			t.Centroid = c
			e.centroidCount++
		}
		if d, ok := s.MemberDists[id]; ok {
			t.MemberDists.LoadFrom(d)
		}
		e.byID[id] = t
		e.order = append(e.order, id)
	}
	return e
}
