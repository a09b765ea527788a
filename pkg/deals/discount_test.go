package deals

import (
	"testing"

	"dealfinder/pkg/models"
)

func fptr(v float64) *float64 { return &v }

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name            string
		current         *float64
		original        *float64
		expectedPercent int
		expectedSavings float64
	}{
		{"no original price", fptr(50), nil, 0, 0},
		{"no current price", nil, fptr(50), 0, 0},
		{"original equals current", fptr(50), fptr(50), 0, 0},
		{"original below current", fptr(60), fptr(50), 0, 0},
		{"simple discount", fptr(80), fptr(100), 20, 20},
		{"rounds up", fptr(84.4), fptr(100), 16, 15.6},
		{"rounds down", fptr(84.6), fptr(100), 15, 15.4},
		{"near full discount", fptr(0.01), fptr(100), 100, 99.99},
		{"small discount rounds to one", fptr(99.4), fptr(100), 1, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percent, savings := ComputeDiscount(tt.current, tt.original)
			if percent != tt.expectedPercent {
				t.Errorf("percent: got %d, want %d", percent, tt.expectedPercent)
			}
			if diff := savings - tt.expectedSavings; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("savings: got %f, want %f", savings, tt.expectedSavings)
			}
		})
	}
}

func TestFilterByMinDiscount(t *testing.T) {
	records := []models.ProductRecord{
		{ID: "A", DiscountPercent: 20},
		{ID: "B", DiscountPercent: 10},
		{ID: "C", DiscountPercent: 15},
		{ID: "D", DiscountPercent: 0},
		{ID: "E", DiscountPercent: 30},
	}

	filtered := FilterByMinDiscount(records, 15)

	expected := []string{"A", "C", "E"}
	if len(filtered) != len(expected) {
		t.Fatalf("got %d records, want %d", len(filtered), len(expected))
	}
	for i, id := range expected {
		if filtered[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, filtered[i].ID, id)
		}
	}
}

func TestFilterByMinDiscountZeroThreshold(t *testing.T) {
	records := []models.ProductRecord{
		{ID: "A", DiscountPercent: 0},
		{ID: "B", DiscountPercent: 5},
	}

	filtered := FilterByMinDiscount(records, 0)
	if len(filtered) != 2 {
		t.Fatalf("zero threshold should keep everything, got %d records", len(filtered))
	}
}
