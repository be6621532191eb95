package telemetry

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculate_KnownSamples(t *testing.T) {
	s := Calculate([]float64{10, 20, 30, 40, 50})

	if s.Count != 5 {
		t.Errorf("Count = %d, want 5", s.Count)
	}
	if s.Min != 10 || s.Max != 50 {
		t.Errorf("Min/Max = %v/%v, want 10/50", s.Min, s.Max)
	}
	if !almostEqual(s.Mean, 30) {
		t.Errorf("Mean = %v, want 30", s.Mean)
	}
	if !almostEqual(s.Median, 30) {
		t.Errorf("Median = %v, want 30", s.Median)
	}
	if !almostEqual(s.Sum, 150) {
		t.Errorf("Sum = %v, want 150", s.Sum)
	}
	// Population standard deviation: sqrt(200).
	if !almostEqual(s.StdDev, math.Sqrt(200)) {
		t.Errorf("StdDev = %v, want %v", s.StdDev, math.Sqrt(200))
	}
	// Nearest rank: ceil(0.90*5)-1 = 4, ceil(0.95*5)-1 = 4, ceil(0.99*5)-1 = 4.
	if s.P90 != 50 || s.P95 != 50 || s.P99 != 50 {
		t.Errorf("P90/P95/P99 = %v/%v/%v, want 50/50/50", s.P90, s.P95, s.P99)
	}
}

func TestCalculate_Empty(t *testing.T) {
	s := Calculate(nil)
	if s.Count != 0 || s.Mean != 0 || s.StdDev != 0 {
		t.Errorf("expected zero-value stats for empty input, got %+v", s)
	}
}

func TestCalculate_MedianEven(t *testing.T) {
	s := Calculate([]float64{1, 2, 3, 4})
	if !almostEqual(s.Median, 2.5) {
		t.Errorf("Median = %v, want 2.5", s.Median)
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	cases := []struct {
		p    float64
		want float64
	}{
		{50, 5},  // ceil(0.50*10)-1 = 4
		{90, 9},  // ceil(0.90*10)-1 = 8
		{95, 10}, // ceil(0.95*10)-1 = 9
		{99, 10},
		{100, 10},
	}
	for _, c := range cases {
		if got := Percentile(sorted, c.p); got != c.want {
			t.Errorf("Percentile(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestPercentile_SingleSample(t *testing.T) {
	if got := Percentile([]float64{42}, 99); got != 42 {
		t.Errorf("Percentile = %v, want 42", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile of empty = %v, want 0", got)
	}
}
