package history

import (
	"context"
	"sync"

	"dealfinder/pkg/logger"
	"dealfinder/pkg/models"
)

const defaultWorkers = 4

// Enricher attaches historical price context to discovered records.
type Enricher struct {
	client  *Client
	workers int
}

func NewEnricher(client *Client) *Enricher {
	return &Enricher{client: client, workers: defaultWorkers}
}

// Enrich mutates records in place, looking each identifier up concurrently
// under a bounded worker count and joining before returning. A failed lookup
// leaves that record without history and never aborts the rest. Re-running
// recomputes and overwrites history, so enrichment is idempotent for
// unchanged inputs.
func (e *Enricher) Enrich(ctx context.Context, records []models.ProductRecord) {
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	for i := range records {
		if records[i].ID == "" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(rec *models.ProductRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			stats, err := e.client.Lookup(ctx, rec.ID)
			if err != nil {
				logger.Dedup("enrich: lookup failed for %s: %v", rec.ID, err)
				return
			}
			if stats == nil {
				return
			}

			rec.PriceHistory = &models.PriceHistory{
				LowestEver:      stats.LowestEver,
				HighestEver:     stats.HighestEver,
				IsHistoricalLow: IsHistoricalLow(rec.CurrentPrice, stats.LowestEver),
			}
		}(&records[i])
	}

	wg.Wait()
}
