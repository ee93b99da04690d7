package analyzer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const productHTML = `<html><head><title>Widget</title></head><body>
<nav><a href="/">Home</a><a href="/shop">Shop</a><a href="/contact">Contact</a></nav>
<div class="breadcrumb">Home / Shop / Widget</div>
<h1>Blue Widget</h1>
<div class="product-gallery">
  <img src="/img/1.jpg"><img src="/img/2.jpg"><img src="/img/3.jpg">
</div>
<span class="price">$19.99</span>
<button class="add-to-cart">Add to cart</button>
<table class="specs"><tr><td>Weight</td><td>1kg</td></tr></table>
</body></html>`

const catalogHTML = `<html><body>
<h1>Shop</h1>
<aside class="filters"><input type="checkbox"></aside>
<ul>
<li class="product-card">A <span class="price">$1</span></li>
<li class="product-card">B <span class="price">$2</span></li>
<li class="product-card">C <span class="price">$3</span></li>
<li class="product-card">D <span class="price">$4</span></li>
<li class="product-card">E <span class="price">$5</span></li>
<li class="product-card">F <span class="price">$6</span></li>
</ul>
<nav class="pagination"><a href="?page=2">2</a></nav>
</body></html>`

const contactHTML = `<html><body>
<h1>Contact us</h1>
<form><input type="text" name="name"><input type="email" name="email"><textarea name="msg"></textarea></form>
<iframe src="https://maps.google.com/embed?x=1"></iframe>
<address>1 Main Street, Springfield</address>
<p>Call us: +1 555 123 4567</p>
</body></html>`

// TestAnalyzeProductPage verifies the commerce signals on a single-product
// fixture.
func TestAnalyzeProductPage(t *testing.T) {
	t.Parallel()

	doc, err := Parse(productHTML)
	require.NoError(t, err)
	fp := Analyze(doc)

	require.True(t, fp.Commerce.HasPrice)
	require.True(t, fp.Commerce.HasBuyButton)
	require.True(t, fp.Commerce.ProductGallery)
	require.GreaterOrEqual(t, fp.Commerce.GalleryImages, 3)
	require.True(t, fp.Commerce.HasSpecsBlock)
	require.Equal(t, "Blue Widget", fp.Navigation.H1)
	require.Equal(t, "Home / Shop / Widget", fp.Navigation.Breadcrumbs)
	require.Contains(t, fp.Navigation.NavLabels, "Shop")
}

// TestAnalyzeCatalogPage verifies the repeated-card counting and listing
// controls.
func TestAnalyzeCatalogPage(t *testing.T) {
	t.Parallel()

	doc, err := Parse(catalogHTML)
	require.NoError(t, err)
	fp := Analyze(doc)

	require.Equal(t, 6, fp.Catalog.ProductCount)
	require.True(t, fp.Catalog.HasFilters)
	require.True(t, fp.Catalog.HasPagination)
}

// TestAnalyzeContactPage verifies the contact signal set including the phone
// regex.
func TestAnalyzeContactPage(t *testing.T) {
	t.Parallel()

	doc, err := Parse(contactHTML)
	require.NoError(t, err)
	fp := Analyze(doc)

	require.True(t, fp.Contact.HasForm)
	require.True(t, fp.Contact.HasMap)
	require.True(t, fp.Contact.HasAddress)
	require.NotEmpty(t, fp.Contact.Phone)
}

// TestNavLabelAndHeadingCaps verifies the extraction caps hold on pages with
// many links and headings.
func TestNavLabelAndHeadingCaps(t *testing.T) {
	t.Parallel()

	html := "<html><body><nav>"
	for i := 0; i < 25; i++ {
		html += `<a href="/x">Item</a>`
	}
	html += "</nav>"
	for i := 0; i < 25; i++ {
		html += "<h2>Heading</h2>"
	}
	html += "</body></html>"

	doc, err := Parse(html)
	require.NoError(t, err)
	fp := Analyze(doc)

	require.Len(t, fp.Navigation.NavLabels, 10)
	require.Len(t, fp.Navigation.Headings, 10)
}

// TestContentTextCapKeepsValidUTF8 verifies the content-text cap never cuts a
// Cyrillic rune in half.
func TestContentTextCapKeepsValidUTF8(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("характеристики ", 60)
	doc, err := Parse("<html><body><main>" + body + "</main></body></html>")
	require.NoError(t, err)
	fp := Analyze(doc)

	require.LessOrEqual(t, len(fp.Navigation.ContentText), 500)
	require.True(t, utf8.ValidString(fp.Navigation.ContentText))
}

// TestDescribeAndFeatureTags verifies the prompt-facing summaries mention the
// signals the classifiers rely on.
func TestDescribeAndFeatureTags(t *testing.T) {
	t.Parallel()

	doc, err := Parse(productHTML)
	require.NoError(t, err)
	fp := Analyze(doc)

	desc := fp.Describe()
	require.Contains(t, desc, "Blue Widget")
	require.Contains(t, desc, "buy button: true")

	tags := fp.FeatureTags()
	require.Contains(t, tags, "цена")
	require.Contains(t, tags, "кнопка_купить")
	require.NotContains(t, tags, "карта")
}
