package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"dealfinder/pkg/cache"
	"dealfinder/pkg/deals"
	"dealfinder/pkg/extract"
	"dealfinder/pkg/fetch"
	"dealfinder/pkg/logger"
	"dealfinder/pkg/models"
)

const (
	KindCategory = "category"
	KindSearch   = "search"

	defaultMaxPages = 2
)

// Pipeline runs the discovery flow: cache lookup, parallel page fetches,
// extraction, first-wins dedup, discount filtering, cache store.
type Pipeline struct {
	Fetcher   fetch.Fetcher
	Extractor *extract.Extractor
	Cache     *cache.Cache
	BaseURL   string
	MaxPages  int
}

func New(fetcher fetch.Fetcher, extractor *extract.Extractor, resultCache *cache.Cache, baseURL string) *Pipeline {
	return &Pipeline{
		Fetcher:   fetcher,
		Extractor: extractor,
		Cache:     resultCache,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxPages:  defaultMaxPages,
	}
}

// Discover returns the deduplicated, discount-filtered records for a
// category or free-text search. Page fetches fan out concurrently; a single
// page failing contributes nothing, and only all pages failing surfaces a
// DiscoveryError. Results are served from cache while fresh.
func (p *Pipeline) Discover(ctx context.Context, kind, value string, minDiscount int) ([]models.ProductRecord, error) {
	query := value
	categoryLabel := KindSearch
	if kind == KindCategory {
		mapped, ok := models.Categories[value]
		if !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownCategory, value)
		}
		query = mapped
		categoryLabel = value
	}

	key := cache.Key{Kind: kind, Value: value, MinDiscount: minDiscount}
	if p.Cache != nil {
		if cached, ok := p.Cache.Get(key); ok {
			logger.Dedup("pipeline: cache hit for %s/%s", kind, value)
			return cached, nil
		}
	}

	pages := p.MaxPages
	if pages <= 0 {
		pages = defaultMaxPages
	}

	pageRecords := make([][]models.ProductRecord, pages)
	pageErrs := make([]error, pages)

	var wg sync.WaitGroup
	for page := 0; page < pages; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()

			markup, err := p.Fetcher.Fetch(ctx, p.pageURL(query, page+1))
			if err != nil {
				logger.Dedup("pipeline: page %d failed for %s/%s: %v", page+1, kind, value, err)
				pageErrs[page] = err
				return
			}
			pageRecords[page] = p.Extractor.Extract(markup, categoryLabel)
		}(page)
	}
	wg.Wait()

	failed := 0
	var lastErr error
	for _, err := range pageErrs {
		if err != nil {
			failed++
			lastErr = err
		}
	}
	if failed == pages {
		return nil, &models.DiscoveryError{Kind: kind, Value: value, Pages: pages, Err: lastErr}
	}

	merged := dedupe(pageRecords)
	filtered := deals.FilterByMinDiscount(merged, minDiscount)

	// an abandoned run must not publish a possibly partial entry
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Cache != nil {
		p.Cache.Put(key, filtered)
	}

	return filtered, nil
}

func (p *Pipeline) pageURL(query string, page int) string {
	return fmt.Sprintf("%s/s?k=%s&page=%d", p.BaseURL, url.QueryEscape(query), page)
}

// dedupe concatenates page results in page-index order; the first record
// seen for an identifier wins.
func dedupe(pages [][]models.ProductRecord) []models.ProductRecord {
	seen := make(map[string]struct{})
	merged := make([]models.ProductRecord, 0)

	for _, records := range pages {
		for _, rec := range records {
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			seen[rec.ID] = struct{}{}
			merged = append(merged, rec)
		}
	}

	return merged
}
