package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"dealfinder/pkg/models"
)

const (
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
	defaultTimeout = 10 * time.Second

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// browserHeaders mimics a regular desktop browser session; catalog pages
// serve bot-wall markup to anything that looks like a script.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// Fetcher retrieves the raw markup of a single catalog page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Client is the plain-HTTP fetch engine. It is stateless; each attempt runs
// on a fresh collector. Transient failures are retried with exponential
// backoff, permanent ones propagate immediately.
type Client struct {
	Retries int
	Backoff time.Duration
	Timeout time.Duration
}

func NewClient() *Client {
	return &Client{
		Retries: defaultRetries,
		Backoff: defaultBackoff,
		Timeout: defaultTimeout,
	}
}

func (c *Client) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(pageURL); err != nil {
		return nil, &models.FetchError{URL: pageURL, Err: err}
	}

	var lastErr *models.FetchError
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			delay := c.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, fetchErr := c.fetchOnce(pageURL)
		if fetchErr == nil {
			return body, nil
		}
		lastErr = fetchErr
		if !fetchErr.Transient {
			return nil, fetchErr
		}
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(pageURL string) ([]byte, *models.FetchError) {
	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
	)
	collector.SetRequestTimeout(c.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for k, v := range browserHeaders {
			r.Headers.Set(k, v)
		}
	})

	var body []byte
	responded := false
	collector.OnResponse(func(r *colly.Response) {
		responded = true
		body = append([]byte(nil), r.Body...)
	})

	var status int
	var reqErr error
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	if err := collector.Visit(pageURL); err != nil && reqErr == nil {
		reqErr = err
	}

	if reqErr == nil && responded {
		return body, nil
	}
	if reqErr == nil {
		reqErr = fmt.Errorf("no response received")
	}

	return nil, &models.FetchError{
		URL:        pageURL,
		StatusCode: status,
		Transient:  transientStatus(status),
		Err:        reqErr,
	}
}

// transientStatus classifies a failed attempt: network-level failures carry
// status 0 and are worth retrying, as are rate limits and upstream 5xx.
func transientStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
