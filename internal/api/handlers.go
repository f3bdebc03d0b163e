package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/amazon-offer-scraper/internal/cache"
	"github.com/maltedev/amazon-offer-scraper/internal/database"
	"github.com/maltedev/amazon-offer-scraper/internal/fetcher"
	"github.com/maltedev/amazon-offer-scraper/internal/scraper"
)

type Handlers struct {
	amazon *scraper.AmazonAPI
	db     *database.DB
	cache  *cache.Cache
	logger *slog.Logger
}

func NewHandlers(amazon *scraper.AmazonAPI, db *database.DB, c *cache.Cache, logger *slog.Logger) *Handlers {
	return &Handlers{
		amazon: amazon,
		db:     db,
		cache:  c,
		logger: logger.With("component", "api"),
	}
}

// ProductResponse wraps a scraped product.
type ProductResponse struct {
	Product *scraper.Product `json:"product"`
}

// OffersResponse wraps a collected offer list.
type OffersResponse struct {
	ASIN   string          `json:"asin"`
	Offers []scraper.Offer `json:"offers"`
	Count  int             `json:"count"`
}

// ValidityResponse reports whether an ASIN names a live listing.
type ValidityResponse struct {
	ASIN  string `json:"asin"`
	Valid bool   `json:"valid"`
}

// GetProduct serves GET /api/products/{asin}. Cache first, then a live
// scrape; successful scrapes are persisted and cached.
func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	asin, ok := h.readASIN(w, r)
	if !ok {
		return
	}

	if product, hit := h.cache.GetProduct(r.Context(), asin); hit {
		h.respondJSON(w, http.StatusOK, ProductResponse{Product: product})
		return
	}

	product, err := h.amazon.GetProductInfo(r.Context(), asin)
	if err != nil {
		// Fall back to the last persisted copy before failing outright.
		if stored, dbErr := h.db.GetProduct(r.Context(), asin); dbErr == nil {
			h.logger.Warn("origin unreachable, serving stored product", "asin", asin, "error", err)
			h.respondJSON(w, http.StatusOK, ProductResponse{Product: stored})
			return
		}
		h.respondTransportError(w, asin, err)
		return
	}
	if product == nil {
		h.respondError(w, http.StatusNotFound, "no product data found for ASIN")
		return
	}

	if err := h.db.SaveProduct(r.Context(), product); err != nil {
		h.logger.Error("failed to persist product", "asin", asin, "error", err)
	}
	h.cache.SetProduct(r.Context(), product)

	h.respondJSON(w, http.StatusOK, ProductResponse{Product: product})
}

// GetOffers serves GET /api/products/{asin}/offers.
func (h *Handlers) GetOffers(w http.ResponseWriter, r *http.Request) {
	asin, ok := h.readASIN(w, r)
	if !ok {
		return
	}

	if offers, hit := h.cache.GetOffers(r.Context(), asin); hit {
		h.respondJSON(w, http.StatusOK, OffersResponse{ASIN: asin, Offers: offers, Count: len(offers)})
		return
	}

	offers, err := h.amazon.GetOffersForASIN(r.Context(), asin)
	if err != nil {
		if stored, dbErr := h.db.GetOffers(r.Context(), asin); dbErr == nil && len(stored) > 0 {
			h.logger.Warn("origin unreachable, serving stored offers", "asin", asin, "error", err)
			h.respondJSON(w, http.StatusOK, OffersResponse{ASIN: asin, Offers: stored, Count: len(stored)})
			return
		}
		h.respondTransportError(w, asin, err)
		return
	}
	if offers == nil {
		offers = []scraper.Offer{}
	}

	if err := h.db.SaveOffers(r.Context(), asin, offers); err != nil {
		h.logger.Error("failed to persist offers", "asin", asin, "error", err)
	}
	h.cache.SetOffers(r.Context(), asin, offers)

	h.respondJSON(w, http.StatusOK, OffersResponse{ASIN: asin, Offers: offers, Count: len(offers)})
}

// GetValidity serves GET /api/products/{asin}/valid with a live existence
// check.
func (h *Handlers) GetValidity(w http.ResponseWriter, r *http.Request) {
	asin, ok := h.readASIN(w, r)
	if !ok {
		return
	}

	valid, err := h.amazon.IsValidASIN(r.Context(), asin)
	if err != nil {
		h.respondTransportError(w, asin, err)
		return
	}

	h.respondJSON(w, http.StatusOK, ValidityResponse{ASIN: asin, Valid: valid})
}

// readASIN accepts either a bare ASIN or a full product URL in the route
// parameter.
func (h *Handlers) readASIN(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "asin"))
	if raw == "" {
		h.respondError(w, http.StatusBadRequest, "asin is required")
		return "", false
	}

	if strings.Contains(raw, "/") {
		if extracted := scraper.ExtractASIN(raw); extracted != "" {
			return extracted, true
		}
		h.respondError(w, http.StatusBadRequest, "could not extract ASIN from URL")
		return "", false
	}

	return raw, true
}

func (h *Handlers) respondTransportError(w http.ResponseWriter, asin string, err error) {
	h.logger.Error("upstream fetch failed", "asin", asin, "error", err)
	if fetcher.IsTransport(err) {
		h.respondError(w, http.StatusBadGateway, "failed to reach origin")
		return
	}
	h.respondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
