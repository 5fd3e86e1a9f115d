package territory

import (
	"math/rand"
	"testing"
)

func TestAssignHashBasedDeduplicatesByText(t *testing.T) {
	e := New()

	id1, created1 := e.Assign("the quick brown fox", nil)
	if !created1 {
		t.Fatalf("expected first hash assign to create a territory")
	}
	id2, created2 := e.Assign("the quick brown fox", nil)
	if created2 {
		t.Fatalf("expected repeat text to reuse the existing territory")
	}
	if id1 != id2 {
		t.Fatalf("expected same territory id for identical text, got %d and %d", id1, id2)
	}

	id3, created3 := e.Assign("a totally different sentence", nil)
	if !created3 {
		t.Fatalf("expected distinct text to create a new territory")
	}
	if id3 == id1 {
		t.Fatalf("expected distinct text to get a distinct territory id")
	}
	if e.Count() != 2 {
		t.Fatalf("expected 2 territories, got %d", e.Count())
	}
}

func TestAssignEmbeddingWarmupAllocatesDistinctTerritories(t *testing.T) {
	e := New()

	// During warmup (nnDistances empty, territory count low) every embedding
	// gets its own territory regardless of similarity.
	id1, created1 := e.Assign("a", []float64{1, 0, 0})
	id2, created2 := e.Assign("b", []float64{1, 0, 0})
	if !created1 || !created2 {
		t.Fatalf("expected warmup assigns to always create new territories")
	}
	if id1 == id2 {
		t.Fatalf("expected distinct territory ids during warmup, got same id %d", id1)
	}
	if e.Count() != 2 {
		t.Fatalf("expected 2 territories after warmup assigns, got %d", e.Count())
	}
}

func TestAssignMergesWithinTau(t *testing.T) {
	e := New()
	// Force past warmup by pre-seeding nnDistances up to warmupMaxNN so subsequent
	// assigns take the nearest-neighbour path instead of the warmup path.
	for i := 0; i < warmupMaxNN; i++ {
		e.nnDistances.Push(0.1)
	}
	e.recomputeTau()

	id1, created1 := e.Assign("seed", []float64{1, 0, 0})
	if !created1 {
		t.Fatalf("expected first post-warmup assign with no territories to create one")
	}

	// A near-identical vector should fall within tau and merge into id1
	// rather than allocate a new territory.
	id2, created2 := e.Assign("near", []float64{0.99, 0.01, 0})
	if created2 {
		t.Fatalf("expected near-duplicate embedding to merge into existing territory")
	}
	if id1 != id2 {
		t.Fatalf("expected merge into territory %d, got %d", id1, id2)
	}

	tr := e.Get(id1)
	if tr.Count != 0 {
		// Count is managed by callers (manager), not bumped by Assign itself.
		t.Logf("territory count after merge-assign: %d", tr.Count)
	}
}

func TestAssignAllocatesBeyondTau(t *testing.T) {
	e := New()
	for i := 0; i < warmupMaxNN; i++ {
		e.nnDistances.Push(0.01)
	}
	e.recomputeTau()
	if e.Tau() > 0.05 {
		t.Fatalf("expected tau clamped near tauMin, got %f", e.Tau())
	}

	id1, _ := e.Assign("seed", []float64{1, 0, 0})
	// An orthogonal vector is far outside a tight tau and should allocate a
	// new territory instead of merging.
	id2, created2 := e.Assign("orthogonal", []float64{0, 1, 0})
	if !created2 {
		t.Fatalf("expected a far embedding to allocate a new territory")
	}
	if id1 == id2 {
		t.Fatalf("expected distinct territory ids for orthogonal embeddings")
	}
}

func TestRecomputeTauUsesTrueMedian(t *testing.T) {
	e := New()
	// Even-length window: true median averages the two middle values,
	// distinguishing it from upperMedian's single-element pick.
	for _, v := range []float64{0.1, 0.2, 0.3, 0.4} {
		e.nnDistances.Push(v)
	}
	e.recomputeTau()
	want := (0.2 + 0.3) / 2
	if got := e.Tau(); got != want {
		t.Fatalf("expected tau=%f (true median), got %f", want, got)
	}
}

func TestUpperMedianDiffersFromTrueMedianOnEvenInput(t *testing.T) {
	vals := []float64{0.1, 0.2, 0.3, 0.4}
	tm := trueMedian(vals)
	um := upperMedian(vals)
	if tm == um {
		t.Fatalf("expected trueMedian (%f) and upperMedian (%f) to differ on even-length input", tm, um)
	}
	if um != 0.3 {
		t.Fatalf("expected upperMedian to be sorted[len/2]=0.3, got %f", um)
	}
}

func TestTauClampedToBounds(t *testing.T) {
	e := New()
	for i := 0; i < 10; i++ {
		e.nnDistances.Push(100.0)
	}
	e.recomputeTau()
	if e.Tau() != tauMax {
		t.Fatalf("expected tau clamped to tauMax=%f, got %f", tauMax, e.Tau())
	}

	e2 := New()
	for i := 0; i < 10; i++ {
		e2.nnDistances.Push(-5.0)
	}
	e2.recomputeTau()
	if e2.Tau() != tauMin {
		t.Fatalf("expected tau clamped to tauMin=%f, got %f", tauMin, e2.Tau())
	}
}

func TestDiffuseMergesSimilarTerritories(t *testing.T) {
	e := New()
	for i := 0; i < warmupMaxNN; i++ {
		e.nnDistances.Push(0.3)
	}
	e.recomputeTau()

	a := e.allocate(Normalize([]float64{1, 0, 0}))
	a.Count = 5
	b := e.allocate(Normalize([]float64{0.999, 0.001, 0}))
	b.Count = 3
	a.MemberDists.Push(0.01)
	b.MemberDists.Push(0.01)

	rng := rand.New(rand.NewSource(1))
	ev := e.Diffuse(rng, 1.0) // kappa=1.0 always accepts a candidate pair
	if ev == nil {
		t.Fatalf("expected a merge event for near-identical centroids with kappa=1.0")
	}
	if e.Get(ev.From) != nil {
		t.Fatalf("expected merged-away territory %d to be removed", ev.From)
	}
	if e.Get(ev.To) == nil {
		t.Fatalf("expected surviving territory %d to remain", ev.To)
	}
	if e.MergeCounter != 1 {
		t.Fatalf("expected MergeCounter=1, got %d", e.MergeCounter)
	}
}

func TestDiffuseRejectsWhenKappaZero(t *testing.T) {
	e := New()
	for i := 0; i < warmupMaxNN; i++ {
		e.nnDistances.Push(0.3)
	}
	e.recomputeTau()

	a := e.allocate(Normalize([]float64{1, 0, 0}))
	a.Count = 5
	b := e.allocate(Normalize([]float64{0.999, 0.001, 0}))
	b.Count = 3

	rng := rand.New(rand.NewSource(1))
	ev := e.Diffuse(rng, 0.0) // kappa=0 never accepts
	if ev != nil {
		t.Fatalf("expected no merge with kappa=0, got merge %+v", ev)
	}
	if e.Count() != 2 {
		t.Fatalf("expected both territories to survive, got count %d", e.Count())
	}
}

func TestSplitRequiresMinimumMembersAndCandidates(t *testing.T) {
	e := New()
	tid, _ := e.Assign("seed", []float64{1, 0, 0})

	// Fewer than 6 members: split must refuse.
	few := []MemberInfo{
		{ID: "a", Embedding: []float64{1, 0, 0}, Novelty: 0.9, Boredom: 0.1},
		{ID: "b", Embedding: []float64{1, 0, 0}, Novelty: 0.1, Boredom: 0.1},
	}
	if _, ok := e.Split(tid, few); ok {
		t.Fatalf("expected split to refuse with fewer than 6 members")
	}
}

func TestSplitReassignsHighNoveltyCandidates(t *testing.T) {
	e := New()
	tid, _ := e.Assign("seed", []float64{1, 0, 0})
	e.Get(tid).Count = 6

	members := []MemberInfo{
		{ID: "a", Embedding: []float64{1, 0, 0}, Novelty: 0.95, Boredom: 0.1},
		{ID: "b", Embedding: []float64{0.9, 0.1, 0}, Novelty: 0.9, Boredom: 0.2},
		{ID: "c", Embedding: []float64{0, 1, 0}, Novelty: 0.1, Boredom: 0.1},
		{ID: "d", Embedding: []float64{0, 1, 0}, Novelty: 0.15, Boredom: 0.1},
		{ID: "e", Embedding: []float64{0, 0, 1}, Novelty: 0.2, Boredom: 0.1},
		{ID: "f", Embedding: []float64{0, 0, 1}, Novelty: 0.05, Boredom: 0.1},
	}

	result, ok := e.Split(tid, members)
	if !ok {
		t.Fatalf("expected split to succeed with a clear high-novelty/low-boredom subset")
	}
	if len(result.Reassigned) != 2 {
		t.Fatalf("expected 2 reassigned members (a,b), got %d: %v", len(result.Reassigned), result.Reassigned)
	}
	if e.Get(result.NewTerritoryID) == nil {
		t.Fatalf("expected new territory %d to exist", result.NewTerritoryID)
	}
	if e.SplitCounter != 1 {
		t.Fatalf("expected SplitCounter=1, got %d", e.SplitCounter)
	}
}

func TestSplitRefusesWhenNoMemberExceedsMedian(t *testing.T) {
	e := New()
	tid, _ := e.Assign("seed", []float64{1, 0, 0})

	// All members share identical novelty/boredom, so no member's novelty
	// is strictly above the median and the ">med" filter selects nobody.
	members := make([]MemberInfo, 6)
	for i := range members {
		members[i] = MemberInfo{ID: string(rune('a' + i)), Embedding: []float64{1, 0, 0}, Novelty: 0.5, Boredom: 0.1}
	}
	if _, ok := e.Split(tid, members); ok {
		t.Fatalf("expected split to refuse when no member exceeds the median novelty")
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	e := New()
	id1, _ := e.Assign("alpha", []float64{1, 0, 0})
	e.Get(id1).Count = 4
	e.RecordMemberDistance(id1, 0.05)
	id2, _ := e.Assign("beta hash", nil)
	_ = id2

	snap := e.Export()
	restored := Restore(snap)

	if restored.Tau() != e.Tau() {
		t.Fatalf("expected tau to round-trip: got %f want %f", restored.Tau(), e.Tau())
	}
	if restored.Count() != e.Count() {
		t.Fatalf("expected territory count to round-trip: got %d want %d", restored.Count(), e.Count())
	}
	tr := restored.Get(id1)
	if tr == nil {
		t.Fatalf("expected territory %d to survive round-trip", id1)
	}
	if tr.Count != 4 {
		t.Fatalf("expected count=4 to round-trip, got %d", tr.Count)
	}
	if tr.MemberDists.Len() != 1 {
		t.Fatalf("expected member distance window to round-trip, got len %d", tr.MemberDists.Len())
	}
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := []float64{0, 0, 0}
	out := Normalize(v)
	for i, x := range out {
		if x != 0 {
			t.Fatalf("expected zero vector to stay zero, got %v at index %d", out, i)
		}
	}
}

func TestCosineDistanceIdenticalVectorsIsZero(t *testing.T) {
	v := []float64{0.3, 0.4, 0.5}
	if d := cosineDistance(Normalize(v), Normalize(v)); d > 1e-9 {
		t.Fatalf("expected ~0 distance for identical vectors, got %f", d)
	}
}

func TestCosineDistanceOrthogonalIsOne(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	if d := cosineDistance(a, b); d < 0.99 || d > 1.01 {
		t.Fatalf("expected ~1 distance for orthogonal vectors, got %f", d)
	}
}

func TestRemoveDropsEmptyTerritory(t *testing.T) {
	e := New()
	id, _ := e.Assign("seed", []float64{1, 0, 0})
	if e.Get(id) == nil {
		t.Fatalf("expected territory %d to exist before removal", id)
	}

	e.Remove(id)

	if e.Get(id) != nil {
		t.Fatalf("expected territory %d to be gone after Remove", id)
	}
	if e.Count() != 0 {
		t.Fatalf("expected 0 territories after removing the only one, got %d", e.Count())
	}
	for _, oid := range e.Order() {
		if oid == id {
			t.Fatalf("expected removed id %d to be absent from Order()", id)
		}
	}
}

func TestRemoveClearsHashIndexSoTextCanReallocate(t *testing.T) {
	e := New()
	id1, created1 := e.Assign("hash me", nil)
	if !created1 {
		t.Fatalf("expected first hash assign to create a territory")
	}

	e.Remove(id1)

	id2, created2 := e.Assign("hash me", nil)
	if !created2 {
		t.Fatalf("expected a fresh territory after the stale hash entry was removed")
	}
	if id2 == id1 {
		t.Fatalf("expected a new territory id distinct from the removed one, got %d again", id1)
	}
}

func TestAssignWarmupGatedByCentroidCountNotTotalTerritories(t *testing.T) {
	e := New()

	// Many embedding-less (hash-only) registrations push total territory
	// count well past warmupMaxTerritories without ever touching
	// centroidCount.
	for i := 0; i < warmupMaxTerritories+10; i++ {
		e.Assign(string(rune('a'+(i%26)))+string(rune('A'+(i/26))), nil)
	}
	if e.Count() <= warmupMaxTerritories {
		t.Fatalf("expected hash-only territories to exceed warmupMaxTerritories, got %d", e.Count())
	}
	if e.centroidCount != 0 {
		t.Fatalf("expected centroidCount to stay 0 with only hash-based territories, got %d", e.centroidCount)
	}

	// An embedding assign right now must still be in warm-up (allocate a
	// fresh territory unconditionally) since no centroid-bearing territory
	// has been created yet.
	id, created := e.Assign("first embedding", []float64{1, 0, 0})
	if !created {
		t.Fatalf("expected embedding warm-up to still be active despite many hash territories")
	}
	if e.centroidCount != 1 {
		t.Fatalf("expected centroidCount=1 after first embedding assign, got %d", e.centroidCount)
	}
	_ = id
}
