package deals

import (
	"math"

	"dealfinder/pkg/models"
)

// ComputeDiscount derives the discount percentage and savings amount from a
// current/original price pair. A missing original price means no discount;
// the result is never negative and the percentage is clamped to [0, 100].
func ComputeDiscount(current, original *float64) (int, float64) {
	if current == nil || original == nil {
		return 0, 0
	}
	if *original <= 0 || *original <= *current {
		return 0, 0
	}

	percent := int(math.Round(100 * (*original - *current) / *original))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return percent, *original - *current
}

// FilterByMinDiscount keeps records whose discount meets the inclusive
// threshold, preserving relative order. Records without discount information
// carry a discount of 0 and fail any positive threshold.
func FilterByMinDiscount(records []models.ProductRecord, minPercent int) []models.ProductRecord {
	if minPercent <= 0 {
		return records
	}

	filtered := make([]models.ProductRecord, 0, len(records))
	for _, rec := range records {
		if rec.DiscountPercent >= minPercent {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}
