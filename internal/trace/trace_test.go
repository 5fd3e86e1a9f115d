package trace

import (
	"reflect"
	"testing"
)

func TestClampEnforcesRanges(t *testing.T) {
	tr := &Trace{
		TTL:           -5,
		LastTouchTick: -1,
		UseCount:      -2,
		Mass:          -1.5,
		Heat:          -0.5,
		Confidence:    1.5,
		Novelty:       -0.2,
		Boredom:       2.0,
		Inhibition:    -3,
		FrontierHits:  -1,
	}
	tr.Clamp()

	if tr.TTL != 0 {
		t.Errorf("expected TTL clamped to 0, got %d", tr.TTL)
	}
	if tr.LastTouchTick != 0 {
		t.Errorf("expected LastTouchTick clamped to 0, got %d", tr.LastTouchTick)
	}
	if tr.UseCount != 0 {
		t.Errorf("expected UseCount clamped to 0, got %d", tr.UseCount)
	}
	if tr.Mass != 0 {
		t.Errorf("expected Mass clamped to 0, got %f", tr.Mass)
	}
	if tr.Heat != 0 {
		t.Errorf("expected Heat clamped to 0, got %f", tr.Heat)
	}
	if tr.Confidence != 1 {
		t.Errorf("expected Confidence clamped to 1, got %f", tr.Confidence)
	}
	if tr.Novelty != 0 {
		t.Errorf("expected Novelty clamped to 0, got %f", tr.Novelty)
	}
	if tr.Boredom != 1 {
		t.Errorf("expected Boredom clamped to 1, got %f", tr.Boredom)
	}
	if tr.Inhibition != 0 {
		t.Errorf("expected Inhibition clamped to 0, got %f", tr.Inhibition)
	}
	if tr.FrontierHits != 0 {
		t.Errorf("expected FrontierHits clamped to 0, got %d", tr.FrontierHits)
	}
}

func TestClampIsIdempotent(t *testing.T) {
	tr := &Trace{Confidence: 0.5, Boredom: 0.3, Mass: 2.0, Heat: 1.0}
	tr.Clamp()
	first := *tr
	tr.Clamp()
	if !reflect.DeepEqual(*tr, first) {
		t.Fatalf("expected Clamp to be idempotent, got %+v after %+v", tr, first)
	}
}

func TestEstimateNoveltyEmptyTextIsZero(t *testing.T) {
	if n := EstimateNovelty(""); n != 0 {
		t.Fatalf("expected 0 novelty for empty text, got %f", n)
	}
}

func TestEstimateNoveltyScalesWithUniqueCodepoints(t *testing.T) {
	low := EstimateNovelty("aaaaaaaaaa")
	high := EstimateNovelty("the quick brown fox jumps over the lazy dog 12345!@#$%")
	if low >= high {
		t.Fatalf("expected low-diversity text (%f) to score below high-diversity text (%f)", low, high)
	}
	if high > 1 || high < 0 {
		t.Fatalf("expected novelty clamped to [0,1], got %f", high)
	}
}

func TestEstimateNoveltySaturatesAtSixtyFourUniqueRunes(t *testing.T) {
	// 70 distinct runes should saturate to 1.0 (clamp01(70/64) == 1).
	runes := make([]rune, 0, 70)
	for r := rune('a'); len(runes) < 70; r++ {
		runes = append(runes, r)
	}
	text := string(runes)
	if n := EstimateNovelty(text); n != 1 {
		t.Fatalf("expected novelty to saturate at 1.0, got %f", n)
	}
}
