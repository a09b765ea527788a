package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"

	"dealfinder/pkg/api"
	"dealfinder/pkg/cache"
	"dealfinder/pkg/extract"
	"dealfinder/pkg/fetch"
	"dealfinder/pkg/history"
	"dealfinder/pkg/models"
	"dealfinder/pkg/pipeline"
	"dealfinder/pkg/storage"
)

const (
	defaultCatalogBaseURL = "https://www.amazon.ca"
	defaultHistoryBaseURL = "https://ca.camelcamelcamel.com"

	defaultCategoryMinDiscount = 15
)

var (
	dealPipeline  *pipeline.Pipeline
	enricher      *history.Enricher
	historyClient *history.Client
	store         *storage.Store
)

func main() {
	port := envOr("PORT", "9090")
	catalogBase := envOr("CATALOG_BASE_URL", defaultCatalogBaseURL)
	historyBase := envOr("HISTORY_BASE_URL", defaultHistoryBaseURL)

	ttl := cache.DefaultTTL
	if val := os.Getenv("CACHE_TTL_MINUTES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			ttl = time.Duration(parsed) * time.Minute
		}
	}

	resultCache, err := cache.New(envOr("CACHE_DB_PATH", "./cache.db"), ttl)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer resultCache.Close()
	log.Printf("Result cache initialized with TTL %s", ttl)

	store, err = storage.Open(envOr("STORAGE_DB_PATH", "./deals.db"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	var fetcher fetch.Fetcher = fetch.NewClient()
	if envOr("FETCH_ENGINE", "http") == "browser" {
		fetcher = fetch.NewBrowser()
		log.Print("Using headless browser fetch engine")
	}

	dealPipeline = pipeline.New(fetcher, extract.New(catalogBase), resultCache, catalogBase)
	if val := os.Getenv("MAX_PAGES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			dealPipeline.MaxPages = parsed
		}
	}

	historyClient = history.NewClient(historyBase)
	enricher = history.NewEnricher(historyClient)

	http.HandleFunc("/", rootHandler)

	fmt.Printf("Access URL: http://localhost:%s\n", port)
	fmt.Printf("API Docs: http://localhost:%s/\n", port)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	// API requests go to the dispatcher
	if strings.HasPrefix(r.URL.Path, "/api/") {
		apiHandler(w, r)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Deal Finder API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func apiHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.WriteBadRequest(w, "Method not allowed. Use GET.", r.URL.Path)
		return
	}

	switch {
	case r.URL.Path == "/api/categories":
		categoriesHandler(w, r)
	case r.URL.Path == "/api/search":
		searchHandler(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/deals/"):
		dealsHandler(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/price-history/"):
		priceHistoryHandler(w, r)
	default:
		api.WriteNotFound(w, "Unknown API path", r.URL.Path)
	}
}

func categoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"categories": models.CategoryNames()})
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		api.WriteBadRequest(w, "Missing required query parameter: q", r.URL.Path)
		return
	}

	minDiscount, err := parseMinDiscount(r, 0)
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}

	records, err := dealPipeline.Discover(r.Context(), pipeline.KindSearch, query, minDiscount)
	if err != nil {
		writeDiscoveryError(w, r, err)
		return
	}

	if r.URL.Query().Get("include_history") == "true" {
		enricher.Enrich(r.Context(), records)
	}

	persist(r.Context(), records)

	writeJSON(w, r, map[string]any{
		"query":    query,
		"count":    len(records),
		"products": records,
	})
}

func dealsHandler(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimPrefix(r.URL.Path, "/api/deals/")
	if category == "" || strings.Contains(category, "/") {
		api.WriteBadRequest(w, "Invalid path. Expected /api/deals/{category}", r.URL.Path)
		return
	}
	if _, ok := models.Categories[category]; !ok {
		api.WriteBadRequest(w,
			fmt.Sprintf("Category not supported. Available: %s", strings.Join(models.CategoryNames(), ", ")),
			r.URL.Path)
		return
	}

	minDiscount, err := parseMinDiscount(r, defaultCategoryMinDiscount)
	if err != nil {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}

	records, err := dealPipeline.Discover(r.Context(), pipeline.KindCategory, category, minDiscount)
	if err != nil {
		writeDiscoveryError(w, r, err)
		return
	}

	persist(r.Context(), records)

	writeJSON(w, r, map[string]any{
		"category":     category,
		"min_discount": minDiscount,
		"count":        len(records),
		"deals":        records,
	})
}

func priceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/price-history/")
	if id == "" || strings.Contains(id, "/") {
		api.WriteBadRequest(w, "Invalid path. Expected /api/price-history/{id}", r.URL.Path)
		return
	}

	stats, err := historyClient.Lookup(r.Context(), id)
	if err != nil {
		log.Printf("Error looking up price history for %s: %v", id, err)
		api.WriteBadGateway(w, "Price tracker is unreachable right now. Try again shortly.", r.URL.Path)
		return
	}
	if stats == nil {
		api.WriteNotFound(w, fmt.Sprintf("No price history found for product %s", id), r.URL.Path)
		return
	}

	response := map[string]any{
		"id":           id,
		"lowest_ever":  stats.LowestEver,
		"highest_ever": stats.HighestEver,
	}
	if store != nil {
		snapshots, err := store.History(r.Context(), id, 50)
		if err != nil {
			log.Printf("Error loading snapshots for %s: %v", id, err)
		} else {
			response["snapshots"] = snapshots
		}
	}

	writeJSON(w, r, response)
}

func parseMinDiscount(r *http.Request, fallback int) (int, error) {
	val := r.URL.Query().Get("min_discount")
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 || parsed > 100 {
		return 0, fmt.Errorf("min_discount must be an integer between 0 and 100")
	}
	return parsed, nil
}

func writeDiscoveryError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("Error discovering deals: %v", err)

	if errors.Is(err, models.ErrUnknownCategory) {
		api.WriteBadRequest(w, err.Error(), r.URL.Path)
		return
	}

	var discErr *models.DiscoveryError
	if errors.As(err, &discErr) {
		api.WriteBadGateway(w, "Catalog is unreachable right now. Try again shortly.", r.URL.Path)
		return
	}

	api.WriteInternalServerError(w, err, r.URL.Path)
}

// persist is best-effort; a storage failure never fails the request.
func persist(ctx context.Context, records []models.ProductRecord) {
	if store == nil || len(records) == 0 {
		return
	}
	if err := store.SaveBatch(ctx, records); err != nil {
		log.Printf("Error saving products: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
		api.WriteInternalServerError(w, fmt.Errorf("failed to encode response"), r.URL.Path)
	}
}
