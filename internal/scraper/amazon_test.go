package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-offer-scraper/internal/fetcher"
	"github.com/maltedev/amazon-offer-scraper/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(baseURL string) *AmazonAPI {
	f := fetcher.New(ratelimit.New(4, 0), fetcher.Options{Timeout: 5 * time.Second}, testLogger())
	return NewAmazonAPI(f, baseURL, testLogger())
}

func validOfferNode(price, seller string) string {
	return fmt.Sprintf(`
<div id="aod-offer">
	<div id="aod-offer-price"><span class="a-price"><span class="a-offscreen">%s</span></span></div>
	<h5 id="aod-offer-heading">New</h5>
	<div id="aod-offer-shipsFrom"><div class="a-col-right"><span>Amazon</span></div></div>
	<div id="aod-offer-soldBy"><div class="a-col-right"><a href="/sp?seller=%s">%s</a></div></div>
</div>`, price, seller, seller)
}

func brokenOfferNode() string {
	// No price element, so extraction of this offer must fail.
	return `
<div id="aod-offer">
	<h5 id="aod-offer-heading">New</h5>
	<div id="aod-offer-shipsFrom"><div class="a-col-right"><span>Amazon</span></div></div>
	<div id="aod-offer-soldBy"><div class="a-col-right"><a href="/sp?seller=X">X</a></div></div>
</div>`
}

// offerServer serves AOD style pages: page 1 carries the offer counter, the
// rest only offer nodes. It records how many times each page was requested.
type offerServer struct {
	counter    string
	pages      map[int]string
	mu         sync.Mutex
	pageHits   map[int]int
	failPages  map[int]bool
	totalCalls int
}

func (s *offerServer) handler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("pageno"); p != "" {
		fmt.Sscanf(p, "%d", &page)
	}

	s.mu.Lock()
	s.pageHits[page]++
	s.totalCalls++
	fail := s.failPages[page]
	s.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	var body strings.Builder
	if page == 1 && s.counter != "" {
		fmt.Fprintf(&body, `<div id="aod-filter-offer-count-string">%s</div>`, s.counter)
	}
	body.WriteString(s.pages[page])
	w.Write([]byte(body.String()))
}

func newOfferServer(t *testing.T, counter string, pages map[int]string) (*offerServer, *httptest.Server) {
	s := &offerServer{
		counter:   counter,
		pages:     pages,
		pageHits:  map[int]int{},
		failPages: map[int]bool{},
	}
	server := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(server.Close)
	return s, server
}

func TestGetOffersPaginates(t *testing.T) {
	state, server := newOfferServer(t, "25 options", map[int]string{
		1: validOfferNode("$10.00", "SellerA") + validOfferNode("$11.00", "SellerB"),
		2: validOfferNode("$12.00", "SellerC"),
		3: validOfferNode("$13.00", "SellerD") + validOfferNode("$14.00", "SellerE"),
	})

	offers, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err)

	// 25 options at 10 per page means 3 pages total.
	assert.Equal(t, 3, state.totalCalls)
	assert.Equal(t, 1, state.pageHits[1])
	assert.Equal(t, 1, state.pageHits[2])
	assert.Equal(t, 1, state.pageHits[3])

	require.Len(t, offers, 5)
	// Page 1's offers come first in document order; the rest in arrival order.
	assert.Equal(t, "SellerA", offers[0].SoldBy)
	assert.Equal(t, "SellerB", offers[1].SoldBy)
}

func TestGetOffersNoCounterStopsAfterFirstPage(t *testing.T) {
	state, server := newOfferServer(t, "", map[int]string{
		1: validOfferNode("$10.00", "SellerA"),
	})

	offers, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err)

	assert.Equal(t, 1, state.totalCalls, "a missing counter means no further pages")
	assert.Len(t, offers, 1)
}

func TestGetOffersZeroCount(t *testing.T) {
	state, server := newOfferServer(t, "0 options", map[int]string{1: ""})

	offers, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err)
	assert.Empty(t, offers)
	assert.Equal(t, 1, state.totalCalls)
}

func TestGetOffersMalformedCounter(t *testing.T) {
	_, server := newOfferServer(t, "lots of options", map[int]string{
		1: validOfferNode("$10.00", "SellerA"),
	})

	offers, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

func TestGetOffersToleratesBrokenOffer(t *testing.T) {
	_, server := newOfferServer(t, "5 options", map[int]string{
		1: validOfferNode("$10.00", "A") + brokenOfferNode() +
			validOfferNode("$11.00", "B") + validOfferNode("$12.00", "C") +
			validOfferNode("$13.00", "D"),
	})

	offers, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err, "a single broken offer must not fail the collection")
	assert.Len(t, offers, 4)
}

func TestGetOffersPageTransportFailureAborts(t *testing.T) {
	state, server := newOfferServer(t, "25 options", map[int]string{
		1: validOfferNode("$10.00", "A"),
		2: validOfferNode("$11.00", "B"),
		3: validOfferNode("$12.00", "C"),
	})
	state.failPages[3] = true

	_, err := newTestAPI(server.URL).GetOffersForASIN(context.Background(), "B07VGRJDFY")
	require.Error(t, err)
	assert.True(t, fetcher.IsTransport(err))
}

func TestGetProductInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/dp/"))
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.Write([]byte(productHTML))
	}))
	t.Cleanup(server.Close)

	product, err := newTestAPI(server.URL).GetProductInfo(context.Background(), "0134190440")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, "0134190440", product.ASIN)
}

func TestGetProductInfoUnparseablePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.Write([]byte("<html><body>nothing here</body></html>"))
	}))
	t.Cleanup(server.Close)

	product, err := newTestAPI(server.URL).GetProductInfo(context.Background(), "B07VGRJDFY")
	require.NoError(t, err, "an unparseable page is not a transport failure")
	assert.Nil(t, product)
}

func TestGetProductInfoTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	_, err := newTestAPI(server.URL).GetProductInfo(context.Background(), "B07VGRJDFY")
	require.Error(t, err)
	assert.True(t, fetcher.IsTransport(err))
}

func TestIsValidASIN(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		if strings.Contains(r.URL.Path, "GONE") {
			w.Write([]byte("<html><head><title>Page Not Found</title></head></html>"))
			return
		}
		w.Write([]byte("<html><head><title>Some Product</title></head></html>"))
	}))
	t.Cleanup(server.Close)

	api := newTestAPI(server.URL)

	valid, err := api.IsValidASIN(context.Background(), "not-an-asin!")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Zero(t, requests.Load(), "invalid characters must be rejected without a request")

	valid, err = api.IsValidASIN(context.Background(), "B07VGRJDFY")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = api.IsValidASIN(context.Background(), "B07GONE123")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestIsValidASIN404Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	valid, err := newTestAPI(server.URL).IsValidASIN(context.Background(), "B000000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestExtractASIN(t *testing.T) {
	assert.Equal(t, "B07VGRJDFY", ExtractASIN("https://www.amazon.com/dp/B07VGRJDFY"))

	longURL := "https://www.amazon.com/Warming-Pets-Removable-Non-Slip-Washable/dp/B096S3QHWL/?_encoding=UTF8&pd_rd_w=DZ6f0&ref_=pd_gw_trq_dl&th=1"
	assert.Equal(t, "B096S3QHWL", ExtractASIN(longURL))

	assert.Empty(t, ExtractASIN("https://www.amazon.com/gp/help"))
	assert.Empty(t, ExtractASIN("not a url"))
}
