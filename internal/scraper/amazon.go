package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-offer-scraper/internal/fetcher"
)

// offersPerPage is how many offers the AOD endpoint returns per page.
const offersPerPage = 10

const defaultBaseURL = "https://www.amazon.com"

var asinRegex = regexp.MustCompile(`/dp/([\dA-Z]{10})/*[^/]*?$`)

// ExtractASIN pulls the 10 character ASIN out of a product URL, long
// tracking-parameter forms included. Returns "" when the URL carries none.
func ExtractASIN(url string) string {
	matches := asinRegex.FindStringSubmatch(url)
	if matches == nil {
		return ""
	}
	return matches[1]
}

// AmazonAPI fetches product and offer data from the public catalog pages.
// The name flatters it: this is a web scraper with helper functions.
type AmazonAPI struct {
	fetcher *fetcher.Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewAmazonAPI builds an API over a throttled fetcher. baseURL may be empty
// for the public amazon.com origin.
func NewAmazonAPI(f *fetcher.Fetcher, baseURL string, logger *slog.Logger) *AmazonAPI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &AmazonAPI{
		fetcher: f,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.With("component", "amazon_api"),
	}
}

// IsValidASIN reports whether asin names a live listing. Identifiers with
// non-alphanumeric characters are rejected without a network call; otherwise
// the product page is fetched and checked for the not-found marker.
func (a *AmazonAPI) IsValidASIN(ctx context.Context, asin string) (bool, error) {
	for _, r := range asin {
		if !isAlphanumeric(r) {
			return false, nil
		}
	}

	doc, err := a.fetcher.Fetch(ctx, a.productURL(asin))
	if err != nil {
		var statusErr *fetcher.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}

	notFound := false
	doc.Find("title").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) == "Page Not Found" {
			notFound = true
		}
	})

	return !notFound, nil
}

// GetProductInfo fetches and extracts the product record for asin. It
// returns (nil, nil) when the page was fetched but no product could be
// parsed, which covers removed listings; transport failures return an error.
func (a *AmazonAPI) GetProductInfo(ctx context.Context, asin string) (*Product, error) {
	doc, err := a.fetcher.Fetch(ctx, a.productURL(asin))
	if err != nil {
		return nil, err
	}

	product, err := ExtractProduct(doc)
	if err != nil {
		a.logger.Error("failed to parse product", "asin", asin, "error", err)
		return nil, nil
	}

	return product, nil
}

// GetOffersForASIN collects every offer for asin across all offer pages.
// Individual offers that fail to parse are logged and skipped; a page level
// transport failure aborts the whole collection. The result holds page 1's
// offers in document order followed by the remaining pages' offers in
// arrival order.
func (a *AmazonAPI) GetOffersForASIN(ctx context.Context, asin string) ([]Offer, error) {
	firstPage, err := a.getOfferPage(ctx, asin, 1)
	if err != nil {
		return nil, err
	}

	offers := a.extractOffers(firstPage, asin)

	totalOffers, ok := readOfferCount(firstPage)
	if !ok {
		// The counter is omitted when offers are sparse, so its absence ends
		// the collection instead of failing it.
		a.logger.Warn("no offer count found, treating as single page",
			"asin", asin, "offers_found", len(offers))
		return offers, nil
	}

	numPages := (totalOffers + offersPerPage - 1) / offersPerPage

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.fetcher.Limiter().MaxConcurrency())

	for page := 2; page <= numPages; page++ {
		page := page
		group.Go(func() error {
			doc, err := a.getOfferPage(groupCtx, asin, page)
			if err != nil {
				return err
			}

			pageOffers := a.extractOffers(doc, asin)
			if len(pageOffers) == 0 {
				a.logger.Warn("offer page contained no offers, listing may have changed",
					"asin", asin, "page", page)
				return nil
			}

			mu.Lock()
			offers = append(offers, pageOffers...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return offers, nil
}

// getOfferPage fetches one page of the all-offers-display endpoint. Page 1
// uses a different URL because it also carries the filter sidebar, offer
// counter included.
func (a *AmazonAPI) getOfferPage(ctx context.Context, asin string, page int) (*goquery.Document, error) {
	var url string
	if page == 1 {
		url = fmt.Sprintf("%s/gp/product/ajax/ref=dp_aod_ALL_mbc?asin=%s&pc=dp&experienceId=aodAjaxMain", a.baseURL, asin)
	} else {
		url = fmt.Sprintf("%s/gp/product/ajax/ref=aod_page_%d?asin=%s&pc=dp&isonlyrenderofferlist=true&pageno=%d&experienceId=aodAjaxMain", a.baseURL, page, asin, page)
	}
	return a.fetcher.Fetch(ctx, url)
}

// extractOffers parses every offer node on the page, logging and skipping
// the ones that fail so one bad offer cannot sink its siblings.
func (a *AmazonAPI) extractOffers(doc *goquery.Document, asin string) []Offer {
	var offers []Offer

	doc.Find("#aod-offer").Each(func(_ int, sel *goquery.Selection) {
		offer, err := ExtractOffer(sel)
		if err != nil {
			a.logger.Warn("failed to parse offer", "asin", asin, "error", err)
			return
		}
		offers = append(offers, *offer)
	})

	return offers
}

// readOfferCount parses the total offer count from the filter sidebar,
// expecting text of the form "<N> options".
func readOfferCount(doc *goquery.Document) (int, bool) {
	var (
		count int
		found bool
	)

	doc.Find("#aod-filter-offer-count-string").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text, ok := strings.CutSuffix(strings.TrimSpace(s.Text()), " options")
		if !ok {
			return true
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return true
		}
		count, found = n, true
		return false
	})

	return count, found
}

func (a *AmazonAPI) productURL(asin string) string {
	return fmt.Sprintf("%s/dp/%s", a.baseURL, asin)
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
