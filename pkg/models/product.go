package models

import (
	"sort"
	"time"
)

// Categories maps each supported category to the search query used against
// the catalog. The set is closed; anything else is a caller error.
var Categories = map[string]string{
	"laptops":      "laptop",
	"monitors":     "monitor",
	"keyboards":    "mechanical keyboard",
	"mice":         "gaming mouse",
	"headphones":   "headphones",
	"phones":       "smartphone",
	"tablets":      "tablet",
	"smartwatches": "smartwatch",
	"webcams":      "webcam",
	"microphones":  "microphone",
}

// CategoryNames returns the supported categories in stable order.
func CategoryNames() []string {
	names := make([]string, 0, len(Categories))
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PriceHistory is the historical context attached to a record after
// enrichment against the external price tracker.
type PriceHistory struct {
	LowestEver      *float64 `json:"lowest_ever"`
	HighestEver     *float64 `json:"highest_ever"`
	IsHistoricalLow bool     `json:"is_historical_low"`
}

// ProductRecord is one product extracted from a catalog result page.
// Numeric fields are pointers so that "couldn't parse" stays distinct from
// zero; OriginalPrice absent means no discount was shown.
type ProductRecord struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	URL             string        `json:"url,omitempty"`
	ImageURL        string        `json:"image_url,omitempty"`
	Category        string        `json:"category"`
	CurrentPrice    *float64      `json:"current_price"`
	OriginalPrice   *float64      `json:"original_price"`
	DiscountPercent int           `json:"discount_percent"`
	Savings         float64       `json:"savings,omitempty"`
	IsPrime         bool          `json:"is_prime"`
	Rating          *float64      `json:"rating"`
	NumReviews      *int          `json:"num_reviews"`
	ScrapedAt       time.Time     `json:"scraped_at"`
	PriceHistory    *PriceHistory `json:"price_history,omitempty"`
}
