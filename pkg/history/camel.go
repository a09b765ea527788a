package history

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// LowTolerance absorbs minor rounding/currency noise when classifying a
// price as a historical low. Fixed absolute amount regardless of magnitude.
const LowTolerance = 1.00

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var priceExpr = regexp.MustCompile(`[\d,]+\.?\d*`)

// Stats is the numeric summary the price tracker publishes per product.
type Stats struct {
	LowestEver  *float64 `json:"lowest_ever"`
	HighestEver *float64 `json:"highest_ever"`
}

// Client scrapes the external price tracker's product page for one
// identifier. The tracker has no API; the summary table on the product page
// carries the lowest/highest observed prices.
type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Lookup returns nil Stats and nil error when the tracker has no record for
// the identifier; that is a normal outcome, not a failure.
func (c *Client) Lookup(ctx context.Context, id string) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/product/%s", c.BaseURL, id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price tracker returned %s for %s", resp.Status, id)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse tracker page for %s: %w", id, err)
	}

	return parseStats(doc), nil
}

// parseStats reads the summary table rows by label. The tracker's markup
// drifts; unrecognized rows are ignored and a page without any usable row
// counts as "no record".
func parseStats(doc *goquery.Document) *Stats {
	stats := &Stats{}

	doc.Find("table.product_summary tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		price := parsePrice(cells.Eq(1).Text())
		if price == nil {
			return
		}
		switch {
		case strings.Contains(label, "lowest"):
			stats.LowestEver = price
		case strings.Contains(label, "highest"):
			stats.HighestEver = price
		}
	})

	if stats.LowestEver == nil && stats.HighestEver == nil {
		return nil
	}
	return stats
}

func parsePrice(text string) *float64 {
	match := priceExpr.FindString(text)
	if match == "" {
		return nil
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &price
}

// IsHistoricalLow reports whether current sits at or within LowTolerance of
// the lowest price ever observed.
func IsHistoricalLow(current, lowest *float64) bool {
	if current == nil || lowest == nil {
		return false
	}
	return *current <= *lowest+LowTolerance
}
