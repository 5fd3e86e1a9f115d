package telemetry

import "testing"

func TestSampleProcessResourcesReturnsNonNegativeValues(t *testing.T) {
	sample, err := SampleProcessResources()
	if err != nil {
		t.Fatalf("SampleProcessResources: %v", err)
	}
	if sample.CPUPercent < 0 {
		t.Fatalf("expected non-negative CPU percent, got %f", sample.CPUPercent)
	}
}
