package ring

import "testing"

func TestFloatPushAndValuesOrder(t *testing.T) {
	r := NewFloat(3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	got := r.Values()
	want := []float64{1, 2, 3}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("index %d: got %v want %v", i, got, want)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
}

func TestFloatEvictsOldestPastCapacity(t *testing.T) {
	r := NewFloat(3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // evicts 1

	got := r.Values()
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected len %d, got %d (%v)", len(want), len(got), got)
	}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("index %d: got %v want %v", i, got, want)
		}
	}
}

func TestFloatMax(t *testing.T) {
	r := NewFloat(4)
	for _, v := range []float64{3, 1, 5, 2} {
		r.Push(v)
	}
	if r.Max() != 5 {
		t.Fatalf("expected max 5, got %f", r.Max())
	}
}

func TestFloatMaxEmptyIsZero(t *testing.T) {
	r := NewFloat(4)
	if r.Max() != 0 {
		t.Fatalf("expected max 0 for empty buffer, got %f", r.Max())
	}
}

func TestFloatLoadFromTruncatesToCapacityKeepingMostRecent(t *testing.T) {
	r := NewFloat(2)
	r.LoadFrom([]float64{1, 2, 3, 4})
	got := r.Values()
	want := []float64{3, 4}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFloatLoadFromThenPushContinuesCorrectly(t *testing.T) {
	r := NewFloat(3)
	r.LoadFrom([]float64{1, 2})
	r.Push(3)
	r.Push(4) // should evict 1, leaving [2,3,4]
	got := r.Values()
	want := []float64{2, 3, 4}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("index %d: got %v want %v", i, got, want)
		}
	}
}

func TestIntPushAndEviction(t *testing.T) {
	r := NewInt(2)
	r.Push(10)
	r.Push(20)
	r.Push(30) // evicts 10
	got := r.Values()
	want := []int{20, 30}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestIntLoadFromTruncates(t *testing.T) {
	r := NewInt(2)
	r.LoadFrom([]int{1, 2, 3})
	got := r.Values()
	want := []int{2, 3}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNewFloatNonPositiveCapacityFallsBackToOne(t *testing.T) {
	r := NewFloat(0)
	if r.Cap() != 1 {
		t.Fatalf("expected capacity fallback to 1, got %d", r.Cap())
	}
	r.Push(1)
	r.Push(2)
	if r.Len() != 1 {
		t.Fatalf("expected len 1 for capacity-1 buffer, got %d", r.Len())
	}
	if r.Values()[0] != 2 {
		t.Fatalf("expected most recent value retained, got %v", r.Values())
	}
}
