package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/maltedev/amazon-offer-scraper/internal/money"
)

// Condition is the closed set of offer conditions Amazon publishes.
// https://www.amazon.com/gp/help/customer/display.html?nodeId=202074290
type Condition string

const (
	ConditionNew            Condition = "new"
	ConditionRenewed        Condition = "renewed"
	ConditionUsedLikeNew    Condition = "used_like_new"
	ConditionUsedVeryGood   Condition = "used_very_good"
	ConditionUsedGood       Condition = "used_good"
	ConditionUsedAcceptable Condition = "used_acceptable"
)

// ParseCondition maps the heading text of an offer to its Condition. The
// source strings are constrained, so anything unrecognized is an error
// rather than a fallback.
func ParseCondition(s string) (Condition, error) {
	s = strings.TrimSpace(s)

	if s == "New" {
		return ConditionNew, nil
	}

	// The "Used" headings carry a large run of whitespace before the dash,
	// so the suffix is trimmed separately instead of matched whole.
	if suffix, ok := strings.CutPrefix(s, "Used"); ok {
		switch strings.TrimSpace(suffix) {
		case "- Renewed":
			return ConditionRenewed, nil
		case "- Like New":
			return ConditionUsedLikeNew, nil
		case "- Very Good":
			return ConditionUsedVeryGood, nil
		case "- Good":
			return ConditionUsedGood, nil
		case "- Acceptable":
			return ConditionUsedAcceptable, nil
		}
	}

	return "", &UnknownConditionError{Value: s}
}

// Offer is one seller's listing for a product.
type Offer struct {
	Condition            Condition      `json:"condition"`
	ConditionDescription string         `json:"condition_description,omitempty"`
	Price                money.PriceUSD `json:"price"`
	ShipsFrom            string         `json:"ships_from"`
	SoldBy               string         `json:"sold_by"`
	// SellerPage is empty when the seller is Amazon.com itself, which has no
	// seller page.
	SellerPage string `json:"seller_page,omitempty"`
}

// ExtractOffer builds an Offer from one #aod-offer node. Extraction is
// all-or-nothing: any missing required field fails the whole offer and no
// partial Offer is returned.
func ExtractOffer(sel *goquery.Selection) (*Offer, error) {
	price, err := extractOfferPrice(sel)
	if err != nil {
		return nil, err
	}

	condition, err := extractOfferCondition(sel)
	if err != nil {
		return nil, err
	}

	conditionDescription := strings.TrimSpace(sel.
		Find("#aod-condition-container .expandable-expanded-text").
		First().Text())

	shipsFrom := collectTrimmedText(sel.Find("#aod-offer-shipsFrom .a-col-right"))
	if shipsFrom == "" {
		return nil, &MissingOfferFieldError{Field: "ships_from"}
	}

	soldBy, sellerPage, err := extractSeller(sel)
	if err != nil {
		return nil, err
	}

	return &Offer{
		Condition:            condition,
		ConditionDescription: conditionDescription,
		Price:                price,
		ShipsFrom:            shipsFrom,
		SoldBy:               soldBy,
		SellerPage:           sellerPage,
	}, nil
}

func extractOfferPrice(sel *goquery.Selection) (money.PriceUSD, error) {
	var (
		price money.PriceUSD
		found bool
	)
	sel.Find(".a-price .a-offscreen").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		parsed, err := money.Parse(s.Text())
		if err != nil {
			return true
		}
		price, found = parsed, true
		return false
	})
	if !found {
		return money.PriceUSD{}, &MissingOfferFieldError{Field: "price"}
	}
	return price, nil
}

func extractOfferCondition(sel *goquery.Selection) (Condition, error) {
	var (
		condition Condition
		found     bool
		parseErr  error
	)
	sel.Find("#aod-offer-heading").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		c, err := ParseCondition(s.Text())
		if err != nil {
			parseErr = err
			return true
		}
		condition, found = c, true
		return false
	})
	if !found {
		if parseErr != nil {
			return "", &MissingOfferFieldError{Field: "condition", Err: parseErr}
		}
		return "", &MissingOfferFieldError{Field: "condition"}
	}
	return condition, nil
}

// extractSeller reads the seller name and page link. Offers sold by
// Amazon.com carry a plain span instead of a link and legitimately have no
// seller page.
func extractSeller(sel *goquery.Selection) (name, page string, err error) {
	seller := sel.Find("#aod-offer-soldBy .a-col-right").First()
	if seller.Length() == 0 {
		return "", "", &MissingOfferFieldError{Field: "sold_by"}
	}

	if link := seller.Find("a").First(); link.Length() > 0 {
		href, _ := link.Attr("href")
		return collectTrimmedText(link), href, nil
	}

	name = collectTrimmedText(seller.Find("span.a-size-small.a-color-base"))
	return name, "", nil
}

// collectTrimmedText concatenates the individually trimmed text nodes under
// sel, which strips the indentation whitespace the offer markup wraps every
// value in.
func collectTrimmedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		appendTrimmedText(node, &b)
	}
	return b.String()
}

func appendTrimmedText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(n.Data))
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendTrimmedText(c, b)
	}
}
