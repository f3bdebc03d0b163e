package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productHTML = `
<html><body>
	<div id="wayfinding-breadcrumbs_feature_div">
		<a href="/b/?node=283155"> Books </a>
		<a href="/b/ref=dp_bc_2?node=5">Computers &amp; Technology</a>
		<a href="/somewhere/else">Not a department</a>
	</div>
	<span id="productTitle">
		The Go Programming Language
	</span>
	<table id="productDetails_detailBullets_sections1">
		<tr><th> Publisher </th><td> Addison-Wesley </td></tr>
		<tr><th> ASIN </th><td> 0134190440 </td></tr>
		<tr><th> Manufacturer </th><td> Addison-Wesley Professional </td></tr>
	</table>
</body></html>`

func productDocument(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractProduct(t *testing.T) {
	product, err := ExtractProduct(productDocument(t, productHTML))
	require.NoError(t, err)

	assert.Equal(t, "0134190440", product.ASIN)
	assert.Equal(t, "The Go Programming Language", product.Name)
	assert.Equal(t, "Addison-Wesley Professional", product.Manufacturer)

	require.Len(t, product.Department, 2)
	assert.Equal(t, "Books", product.Department[0].Name)
	assert.Equal(t, uint64(283155), product.Department[0].Node)
	assert.Equal(t, "Computers & Technology", product.Department[1].Name)
	assert.Equal(t, uint64(5), product.Department[1].Node)
}

func TestExtractProductMissingRequiredField(t *testing.T) {
	tests := []struct {
		name   string
		remove string
	}{
		{name: "No ASIN row", remove: `<tr><th> ASIN </th><td> 0134190440 </td></tr>`},
		{name: "No manufacturer row", remove: `<tr><th> Manufacturer </th><td> Addison-Wesley Professional </td></tr>`},
		{name: "No title", remove: `<span id="productTitle">
		The Go Programming Language
	</span>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := strings.Replace(productHTML, tt.remove, "", 1)
			product, err := ExtractProduct(productDocument(t, html))
			assert.ErrorIs(t, err, ErrItemNotFound)
			assert.Nil(t, product, "no partial product may be returned")
		})
	}
}

func TestExtractProductNoBreadcrumbs(t *testing.T) {
	html := strings.Replace(productHTML, `<div id="wayfinding-breadcrumbs_feature_div">
		<a href="/b/?node=283155"> Books </a>
		<a href="/b/ref=dp_bc_2?node=5">Computers &amp; Technology</a>
		<a href="/somewhere/else">Not a department</a>
	</div>`, "", 1)

	product, err := ExtractProduct(productDocument(t, html))
	require.NoError(t, err)
	assert.Empty(t, product.Department, "breadcrumbs are optional")
}

func TestExtractDepartment(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected Department
		hasError bool
	}{
		{
			name:     "Plain node link",
			html:     `<a href="/b/?node=1234">Electronics</a>`,
			expected: Department{Name: "Electronics", Node: 1234},
		},
		{
			name:     "Node after other params",
			html:     `<a href="/b/ref=dp_bc_1?ie=UTF8&node=99">Video Games</a>`,
			expected: Department{Name: "Video Games", Node: 99},
		},
		{name: "No href", html: `<a>Electronics</a>`, hasError: true},
		{name: "No node param", html: `<a href="/b/?ref=foo">Electronics</a>`, hasError: true},
		{name: "Non numeric node", html: `<a href="/b/?node=abc">Electronics</a>`, hasError: true},
		{name: "Node not at end", html: `<a href="/b/?node=12&ref=foo">Electronics</a>`, hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := productDocument(t, tt.html)
			dept, err := ExtractDepartment(doc.Find("a").First())
			if tt.hasError {
				assert.ErrorIs(t, err, ErrItemNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, dept)
		})
	}
}

func TestDepartmentURL(t *testing.T) {
	dept := Department{Name: "Books", Node: 283155}
	assert.Equal(t, "https://amazon.com/b/?node=283155", dept.URL())
}
