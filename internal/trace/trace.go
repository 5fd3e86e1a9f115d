// Package trace holds the per-memory record and its range-clamp routine
// (component A of the Void Dynamics memory manager).
package trace

// Trace is a single stored memory entry with evolving scalar state. Field
// names and ranges match spec.md §3's Memory trace table. JSON tags give
// the exact snake_case keys spec.md §6's snapshot format requires.
type Trace struct {
	ID              string         `json:"-"`
	Text            string         `json:"text"`
	Embedding       []float64      `json:"embedding,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	TerritoryID     *int           `json:"territory_id,omitempty"`
	TTL             int            `json:"ttl"`
	LastTouchTick   int            `json:"last_touch_tick"`
	UseCount        int            `json:"use_count"`
	Mass            float64        `json:"mass"`
	Heat            float64        `json:"heat"`
	Confidence      float64        `json:"confidence"`
	Novelty         float64        `json:"novelty"`
	Boredom         float64        `json:"boredom"`
	Inhibition      float64        `json:"inhibition"`
	FrontierHits    int            `json:"frontier_hits"`
	PendingCondense bool           `json:"pending_condense"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMin(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

// Clamp enforces every numeric-range invariant from spec.md §3 and is
// idempotent; it must run after every field mutation.
func (t *Trace) Clamp() {
	if t.TTL < 0 {
		t.TTL = 0
	}
	if t.LastTouchTick < 0 {
		t.LastTouchTick = 0
	}
	if t.UseCount < 0 {
		t.UseCount = 0
	}
	t.Mass = clampMin(t.Mass, 0)
	t.Heat = clampMin(t.Heat, 0)
	t.Confidence = clamp01(t.Confidence)
	t.Novelty = clamp01(t.Novelty)
	t.Boredom = clamp01(t.Boredom)
	t.Inhibition = clampMin(t.Inhibition, 0)
	if t.FrontierHits < 0 {
		t.FrontierHits = 0
	}
}

// EstimateNovelty implements spec.md §4.A's lexical novelty surrogate:
// clamp01(|unique codepoints in text| / 64), or 0 for empty text.
func EstimateNovelty(text string) float64 {
	if text == "" {
		return 0
	}
	seen := make(map[rune]struct{})
	for _, r := range text {
		seen[r] = struct{}{}
	}
	return clamp01(float64(len(seen)) / 64.0)
}
