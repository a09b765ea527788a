package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"dealfinder/pkg/deals"
	"dealfinder/pkg/logger"
	"dealfinder/pkg/models"
)

// resultBlockSelector matches one product block on a search result page.
const resultBlockSelector = `div[data-component-type="s-search-result"]`

var (
	priceExpr  = regexp.MustCompile(`[\d,]+\.?\d*`)
	ratingExpr = regexp.MustCompile(`[\d.]+`)
	intExpr    = regexp.MustCompile(`\d+`)
)

// Extractor turns raw search-result markup into product records. BaseURL
// prefixes relative product links.
type Extractor struct {
	BaseURL string
}

func New(baseURL string) *Extractor {
	return &Extractor{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Extract walks every result block on the page. A malformed block is skipped
// rather than failing the page; a block whose numbers don't parse keeps nil
// fields. Zero extracted records is a valid result.
func (ex *Extractor) Extract(markup []byte, category string) []models.ProductRecord {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		logger.Dedup("extract: unparseable page for %s: %v", category, err)
		return nil
	}

	records := make([]models.ProductRecord, 0)
	doc.Find(resultBlockSelector).Each(func(_ int, block *goquery.Selection) {
		record, ok := ex.extractBlock(block, category)
		if !ok {
			logger.Dedup("extract: skipping malformed block in %s results", category)
			return
		}
		records = append(records, record)
	})

	return records
}

func (ex *Extractor) extractBlock(block *goquery.Selection, category string) (models.ProductRecord, bool) {
	id, _ := block.Attr("data-asin")
	id = strings.TrimSpace(id)
	if id == "" {
		return models.ProductRecord{}, false
	}

	title := strings.TrimSpace(block.Find("h2").First().Text())
	if title == "" {
		return models.ProductRecord{}, false
	}

	record := models.ProductRecord{
		ID:        id,
		Title:     title,
		Category:  category,
		ScrapedAt: time.Now(),
	}

	if href, ok := block.Find("a.a-link-normal.s-no-outline").First().Attr("href"); ok {
		record.URL = ex.absoluteURL(href)
	}
	if src, ok := block.Find("img.s-image").First().Attr("src"); ok {
		record.ImageURL = src
	}

	record.CurrentPrice = parseCurrentPrice(block)
	record.OriginalPrice = parsePrice(block.Find("span.a-price.a-text-price").First().Text())
	record.DiscountPercent, record.Savings = deals.ComputeDiscount(record.CurrentPrice, record.OriginalPrice)

	record.Rating = parseRating(block.Find("span.a-icon-alt").First().Text())
	record.NumReviews = parseReviewCount(block.Find("span.a-size-base.s-underline-text").First().Text())
	record.IsPrime = block.Find("i.a-icon-prime").Length() > 0

	return record, true
}

func (ex *Extractor) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return ex.BaseURL + href
}

// parseCurrentPrice reassembles the price from the whole/fraction span pair
// the result grid uses, e.g. "1,299." + "99".
func parseCurrentPrice(block *goquery.Selection) *float64 {
	whole := strings.TrimSpace(block.Find("span.a-price-whole").First().Text())
	if whole == "" {
		return nil
	}
	whole = strings.NewReplacer(",", "", ".", "").Replace(whole)

	fraction := strings.TrimSpace(block.Find("span.a-price-fraction").First().Text())
	if fraction != "" {
		cents, err := strconv.ParseFloat(whole+fraction, 64)
		if err != nil {
			return nil
		}
		price := cents / 100
		return &price
	}

	price, err := strconv.ParseFloat(whole, 64)
	if err != nil {
		return nil
	}
	return &price
}

// parsePrice pulls a monetary amount out of loosely formatted text such as
// "$1,299.99". Returns nil when nothing parseable is present.
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

// parseRating reads "4.5 out of 5 stars" style strings.
func parseRating(text string) *float64 {
	match := ratingExpr.FindString(text)
	if match == "" {
		return nil
	}
	rating, err := strconv.ParseFloat(match, 64)
	if err != nil || rating < 0 || rating > 5 {
		return nil
	}
	return &rating
}

func parseReviewCount(text string) *int {
	match := intExpr.FindString(strings.ReplaceAll(text, ",", ""))
	if match == "" {
		return nil
	}
	count, err := strconv.Atoi(match)
	if err != nil || count < 0 {
		return nil
	}
	return &count
}
