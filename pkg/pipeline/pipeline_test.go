package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dealfinder/pkg/cache"
	"dealfinder/pkg/extract"
	"dealfinder/pkg/models"
)

// stubFetcher serves canned markup or errors keyed by page number.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[int]string
	errs  map[int]error
	calls int
}

func (s *stubFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	page, _ := strconv.Atoi(u.Query().Get("page"))

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err, ok := s.errs[page]; ok {
		return nil, err
	}
	return []byte(s.pages[page]), nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func resultBlock(id, title string, current, original float64) string {
	b := fmt.Sprintf(`<div data-component-type="s-search-result" data-asin=%q><h2>%s</h2>`, id, title)
	if current > 0 {
		whole := int(current)
		frac := int(math.Round((current - float64(whole)) * 100))
		b += fmt.Sprintf(`<span class="a-price"><span class="a-price-whole">%d.</span><span class="a-price-fraction">%02d</span></span>`, whole, frac)
	}
	if original > 0 {
		b += fmt.Sprintf(`<span class="a-price a-text-price"><span>$%.2f</span></span>`, original)
	}
	return b + `</div>`
}

func resultPage(blocks ...string) string {
	return "<html><body>" + strings.Join(blocks, "\n") + "</body></html>"
}

func newTestPipeline(t *testing.T, fetcher *stubFetcher, pages int) *Pipeline {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "cache.db"), 5*time.Minute)
	if err != nil {
		t.Fatalf("cache init failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	p := New(fetcher, extract.New("https://catalog.example.com"), c, "https://catalog.example.com")
	p.MaxPages = pages
	return p
}

func TestDiscoverDedupFirstWins(t *testing.T) {
	fetcher := &stubFetcher{pages: map[int]string{
		1: resultPage(resultBlock("X1", "first occurrence", 80, 100)),
		2: resultPage(resultBlock("X1", "second occurrence", 80, 100), resultBlock("X2", "other", 70, 100)),
	}}
	p := newTestPipeline(t, fetcher, 2)

	records, err := p.Discover(context.Background(), KindCategory, "laptops", 0)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 deduplicated records, got %d", len(records))
	}
	if records[0].ID != "X1" || records[0].Title != "first occurrence" {
		t.Errorf("dedup should keep the first occurrence, got %q", records[0].Title)
	}
	if records[1].ID != "X2" {
		t.Errorf("expected X2 second, got %s", records[1].ID)
	}
}

func TestDiscoverPartialFailure(t *testing.T) {
	page1 := make([]string, 0, 5)
	page3 := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		page1 = append(page1, resultBlock(fmt.Sprintf("A%d", i), "item", 80, 100))
		page3 = append(page3, resultBlock(fmt.Sprintf("B%d", i), "item", 80, 100))
	}

	fetcher := &stubFetcher{
		pages: map[int]string{1: resultPage(page1...), 3: resultPage(page3...)},
		errs:  map[int]error{2: &models.FetchError{URL: "page2", StatusCode: 403, Err: errors.New("blocked")}},
	}
	p := newTestPipeline(t, fetcher, 3)

	records, err := p.Discover(context.Background(), KindSearch, "mechanical keyboard", 0)
	if err != nil {
		t.Fatalf("one failed page must not fail the request: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records from the surviving pages, got %d", len(records))
	}
}

func TestDiscoverTotalFailure(t *testing.T) {
	fetchErr := &models.FetchError{URL: "page", StatusCode: 503, Transient: true, Err: errors.New("unavailable")}
	fetcher := &stubFetcher{errs: map[int]error{1: fetchErr, 2: fetchErr}}
	p := newTestPipeline(t, fetcher, 2)

	_, err := p.Discover(context.Background(), KindCategory, "monitors", 10)
	if err == nil {
		t.Fatal("expected DiscoveryError when every page fails")
	}

	var discErr *models.DiscoveryError
	if !errors.As(err, &discErr) {
		t.Fatalf("expected DiscoveryError, got %T: %v", err, err)
	}
	if discErr.Kind != KindCategory || discErr.Value != "monitors" {
		t.Errorf("error should carry request parameters, got %+v", discErr)
	}

	if _, ok := p.Cache.Get(cache.Key{Kind: KindCategory, Value: "monitors", MinDiscount: 10}); ok {
		t.Error("cache must not be populated after total failure")
	}
}

func TestDiscoverMinDiscountEndToEnd(t *testing.T) {
	fetcher := &stubFetcher{pages: map[int]string{
		1: resultPage(
			resultBlock("P1", "twenty", 80, 100),
			resultBlock("P2", "ten", 90, 100),
			resultBlock("P3", "thirty", 70, 100),
			resultBlock("P4", "fifteen", 85, 100),
		),
		2: resultPage(
			resultBlock("P5", "five", 95, 100),
			resultBlock("P6", "twentyfive", 75, 100),
			resultBlock("P7", "eighteen", 82, 100),
			resultBlock("P8", "twelve", 88, 100),
		),
	}}
	p := newTestPipeline(t, fetcher, 2)

	records, err := p.Discover(context.Background(), KindCategory, "laptops", 15)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	expected := []int{20, 30, 15, 25, 18}
	if len(records) != len(expected) {
		t.Fatalf("expected %d deals, got %d", len(expected), len(records))
	}
	for i, want := range expected {
		if records[i].DiscountPercent != want {
			t.Errorf("position %d: got %d%%, want %d%%", i, records[i].DiscountPercent, want)
		}
	}
}

func TestDiscoverServesFromCache(t *testing.T) {
	fetcher := &stubFetcher{pages: map[int]string{
		1: resultPage(resultBlock("X1", "item", 80, 100)),
		2: resultPage(),
	}}
	p := newTestPipeline(t, fetcher, 2)

	if _, err := p.Discover(context.Background(), KindCategory, "headphones", 0); err != nil {
		t.Fatalf("first Discover failed: %v", err)
	}
	firstCalls := fetcher.callCount()

	records, err := p.Discover(context.Background(), KindCategory, "headphones", 0)
	if err != nil {
		t.Fatalf("second Discover failed: %v", err)
	}
	if fetcher.callCount() != firstCalls {
		t.Error("second request should be served from cache without fetching")
	}
	if len(records) != 1 || records[0].ID != "X1" {
		t.Fatalf("cached result mismatch: %+v", records)
	}
}

func TestDiscoverUnknownCategory(t *testing.T) {
	fetcher := &stubFetcher{}
	p := newTestPipeline(t, fetcher, 2)

	_, err := p.Discover(context.Background(), KindCategory, "toasters", 0)
	if !errors.Is(err, models.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if fetcher.callCount() != 0 {
		t.Error("unknown category must not trigger any fetch")
	}
}

func TestDiscoverCancelledRunDoesNotStore(t *testing.T) {
	fetcher := &stubFetcher{pages: map[int]string{
		1: resultPage(resultBlock("X1", "item", 80, 100)),
		2: resultPage(),
	}}
	p := newTestPipeline(t, fetcher, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Discover(ctx, KindSearch, "webcam", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, ok := p.Cache.Get(cache.Key{Kind: KindSearch, Value: "webcam", MinDiscount: 0}); ok {
		t.Error("cancelled run must not write to the cache")
	}
}
