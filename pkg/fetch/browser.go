package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"dealfinder/pkg/models"
)

// Browser renders pages in headless Chrome before handing back the markup.
// Catalog fronts that serve an interstitial to plain HTTP clients give a
// real browser session the full result grid. Selected via FETCH_ENGINE=browser.
type Browser struct {
	Timeout time.Duration
}

func NewBrowser() *Browser {
	return &Browser{Timeout: 45 * time.Second}
}

func (b *Browser) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(browserCtx, b.Timeout)
	defer cancelRun()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		// a rendering failure is worth one more pipeline-level attempt later
		return nil, &models.FetchError{URL: pageURL, Transient: true, Err: err}
	}

	return []byte(html), nil
}
