// Package analyzer extracts a structured content fingerprint from rendered
// page HTML. The fingerprint is the only input to the classifiers; nothing
// downstream re-reads the live page.
package analyzer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxNavLabels   = 10
	maxHeadings    = 10
	maxContentText = 500
)

var phoneRe = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)

// Fingerprint is the structured signal set extracted from a page. Each
// category is an explicit sub-struct rather than a loose bag of booleans.
type Fingerprint struct {
	Commerce   CommerceSignals   `json:"commerce"`
	Catalog    CatalogSignals    `json:"catalog"`
	Contact    ContactSignals    `json:"contact"`
	Navigation NavigationSignals `json:"navigation"`
	Sections   SectionSignals    `json:"sections"`
}

// CommerceSignals describe single-product indicators.
type CommerceSignals struct {
	HasPrice       bool `json:"has_price"`
	HasBuyButton   bool `json:"has_buy_button"`
	GalleryImages  int  `json:"gallery_images"`
	HasSpecsBlock  bool `json:"has_specs_block"`
	ProductGallery bool `json:"product_gallery"`
}

// CatalogSignals describe product-listing indicators.
type CatalogSignals struct {
	ProductCount  int  `json:"product_count"`
	HasFilters    bool `json:"has_filters"`
	HasPagination bool `json:"has_pagination"`
}

// ContactSignals describe contact-page indicators.
type ContactSignals struct {
	HasForm    bool   `json:"has_form"`
	HasMap     bool   `json:"has_map"`
	Phone      string `json:"phone,omitempty"`
	HasAddress bool   `json:"has_address"`
}

// NavigationSignals carry the page's textual skeleton.
type NavigationSignals struct {
	Breadcrumbs string   `json:"breadcrumbs,omitempty"`
	H1          string   `json:"h1,omitempty"`
	NavLabels   []string `json:"nav_labels,omitempty"`
	Headings    []string `json:"headings,omitempty"`
	ContentText string   `json:"content_text,omitempty"`
}

// SectionSignals flag recognizable page sections.
type SectionSignals struct {
	HasTeam         bool `json:"has_team"`
	HasFAQ          bool `json:"has_faq"`
	HasPricingTable bool `json:"has_pricing_table"`
	HasPortfolio    bool `json:"has_portfolio"`
	HasLongArticle  bool `json:"has_long_article"`
	HasTestimonials bool `json:"has_testimonials"`
}

// Analyze builds a Fingerprint from parsed HTML. It is a pure function of the
// document.
func Analyze(doc *goquery.Document) Fingerprint {
	return Fingerprint{
		Commerce:   analyzeCommerce(doc),
		Catalog:    analyzeCatalog(doc),
		Contact:    analyzeContact(doc),
		Navigation: analyzeNavigation(doc),
		Sections:   analyzeSections(doc),
	}
}

// Parse converts raw HTML into a goquery document for Analyze.
func Parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func analyzeCommerce(doc *goquery.Document) CommerceSignals {
	s := CommerceSignals{}
	s.HasPrice = doc.Find(`[class*="price"], [itemprop="price"], [data-price]`).Length() > 0
	doc.Find("button, a, input[type=submit]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(el.Text()))
		val, _ := el.Attr("value")
		text += " " + strings.ToLower(val)
		class, _ := el.Attr("class")
		text += " " + strings.ToLower(class)
		for _, kw := range []string{"add to cart", "buy", "купить", "в корзину", "заказать", "add-to-cart", "addtocart"} {
			if strings.Contains(text, kw) {
				s.HasBuyButton = true
				return false
			}
		}
		return true
	})
	gallery := doc.Find(`[class*="gallery"] img, [class*="slider"] img, [class*="product"] img, [class*="carousel"] img`)
	s.GalleryImages = gallery.Length()
	s.ProductGallery = s.GalleryImages >= 3
	s.HasSpecsBlock = doc.Find(`[class*="spec"], [class*="characteristic"], [class*="attributes"], table[class*="param"]`).Length() > 0
	return s
}

func analyzeCatalog(doc *goquery.Document) CatalogSignals {
	s := CatalogSignals{}
	s.ProductCount = doc.Find(`[class*="product-card"], [class*="product-item"], [class*="catalog-item"], [class*="card"][class*="product"], li[class*="product"]`).Length()
	s.HasFilters = doc.Find(`[class*="filter"], [class*="facet"], aside select, aside input[type=checkbox]`).Length() > 0
	s.HasPagination = doc.Find(`[class*="pagination"], [class*="pager"], nav[aria-label*="pag" i]`).Length() > 0
	return s
}

func analyzeContact(doc *goquery.Document) ContactSignals {
	s := ContactSignals{}
	s.HasForm = doc.Find("form").FilterFunction(func(_ int, el *goquery.Selection) bool {
		// A lone search box is not a contact form.
		return el.Find("textarea, input[type=email], input[type=tel]").Length() > 0 ||
			el.Find("input").Length() >= 2
	}).Length() > 0
	s.HasMap = doc.Find(`iframe[src*="maps"], [class*="map"], [id*="map"]`).Length() > 0
	if m := phoneRe.FindString(doc.Find("body").Text()); m != "" {
		s.Phone = strings.TrimSpace(m)
	}
	s.HasAddress = doc.Find(`address, [class*="address"], [itemprop="address"]`).Length() > 0
	return s
}

func analyzeNavigation(doc *goquery.Document) NavigationSignals {
	s := NavigationSignals{}
	s.Breadcrumbs = collapseSpace(doc.Find(`[class*="breadcrumb"], nav[aria-label*="breadcrumb" i]`).First().Text())
	s.H1 = collapseSpace(doc.Find("h1").First().Text())

	doc.Find("nav a, header a").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		label := collapseSpace(el.Text())
		if label == "" {
			return true
		}
		s.NavLabels = append(s.NavLabels, label)
		return len(s.NavLabels) < maxNavLabels
	})

	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		h := collapseSpace(el.Text())
		if h == "" {
			return true
		}
		s.Headings = append(s.Headings, h)
		return len(s.Headings) < maxHeadings
	})

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	s.ContentText = truncate(collapseSpace(main.Text()), maxContentText)
	return s
}

func analyzeSections(doc *goquery.Document) SectionSignals {
	s := SectionSignals{}
	s.HasTeam = doc.Find(`[class*="team"], [class*="staff"], [class*="employee"]`).Length() > 0
	s.HasFAQ = doc.Find(`[class*="faq"], [class*="accordion"], details summary`).Length() > 0
	s.HasPricingTable = doc.Find(`[class*="pricing"], [class*="tariff"], [class*="plan"][class*="price"]`).Length() > 0
	s.HasPortfolio = doc.Find(`[class*="portfolio"], [class*="works"], [class*="case"][class*="stud"]`).Length() > 0
	s.HasTestimonials = doc.Find(`[class*="testimonial"], [class*="review"], [class*="feedback"]`).Length() > 0

	article := doc.Find("article").First()
	if article.Length() > 0 && len(collapseSpace(article.Text())) > 1500 {
		s.HasLongArticle = true
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
