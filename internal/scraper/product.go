package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// departmentNodeRegex pulls the numeric category id out of a breadcrumb
// link's query string.
var departmentNodeRegex = regexp.MustCompile(`[?&]node=(\d+)$`)

// Product is the typed record extracted from a product detail page. All
// fields are required; extraction never yields a partial Product.
type Product struct {
	ASIN         string              `json:"asin"`
	Name         string              `json:"name"`
	Department   DepartmentHierarchy `json:"department"`
	Manufacturer string              `json:"manufacturer"`
}

// Department is one breadcrumb entry: a display name plus Amazon's numeric
// category node id.
type Department struct {
	Name string `json:"name"`
	Node uint64 `json:"node"`
}

// URL renders the category browse page for this department.
func (d Department) URL() string {
	return fmt.Sprintf("https://amazon.com/b/?node=%d", d.Node)
}

// DepartmentHierarchy is the breadcrumb path from root department to the
// product's own category, in source order. It may be empty when the page
// carries no breadcrumb.
type DepartmentHierarchy []Department

// ExtractProduct builds a Product from a parsed detail page. A missing ASIN
// row, manufacturer row or title yields ErrItemNotFound.
func ExtractProduct(doc *goquery.Document) (*Product, error) {
	asin, ok := readProductDetail(doc, "ASIN")
	if !ok {
		return nil, fmt.Errorf("%w: no ASIN detail row", ErrItemNotFound)
	}

	manufacturer, ok := readProductDetail(doc, "Manufacturer")
	if !ok {
		return nil, fmt.Errorf("%w: no Manufacturer detail row", ErrItemNotFound)
	}

	name := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if name == "" {
		return nil, fmt.Errorf("%w: no product title", ErrItemNotFound)
	}

	return &Product{
		ASIN:         asin,
		Name:         name,
		Department:   ExtractDepartmentHierarchy(doc),
		Manufacturer: manufacturer,
	}, nil
}

// readProductDetail scans the detail bullets table for a row whose header
// matches key and returns the adjacent value cell.
func readProductDetail(doc *goquery.Document, key string) (string, bool) {
	var (
		value string
		found bool
	)

	doc.Find("#productDetails_detailBullets_sections1 tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if strings.TrimSpace(row.Find("th").First().Text()) != key {
			return true
		}
		value = strings.TrimSpace(row.Find("td").First().Text())
		found = value != ""
		return !found
	})

	return value, found
}

// ExtractDepartmentHierarchy reads the breadcrumb links in document order.
// Links without a parseable node id are skipped, matching how the origin
// mixes plain navigation links into the breadcrumb container.
func ExtractDepartmentHierarchy(doc *goquery.Document) DepartmentHierarchy {
	hierarchy := DepartmentHierarchy{}

	doc.Find("#wayfinding-breadcrumbs_feature_div a").Each(func(_ int, link *goquery.Selection) {
		department, err := ExtractDepartment(link)
		if err != nil {
			return
		}
		hierarchy = append(hierarchy, department)
	})

	return hierarchy
}

// ExtractDepartment parses one breadcrumb link into a Department. The link
// must carry an href ending in node=<digits>.
func ExtractDepartment(link *goquery.Selection) (Department, error) {
	href, ok := link.Attr("href")
	if !ok {
		return Department{}, fmt.Errorf("%w: breadcrumb link has no href", ErrItemNotFound)
	}

	matches := departmentNodeRegex.FindStringSubmatch(href)
	if matches == nil {
		return Department{}, fmt.Errorf("%w: no category node in %q", ErrItemNotFound, href)
	}

	node, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return Department{}, fmt.Errorf("%w: category node in %q out of range", ErrItemNotFound, href)
	}

	return Department{
		Name: strings.TrimSpace(link.Text()),
		Node: node,
	}, nil
}
