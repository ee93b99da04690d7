// Package classify decides which pages merit capture and which canonical
// template role a page plays.
package classify

// PageType identifies a canonical page role in the template catalog.
type PageType string

// Catalog page types. TypeNone means "no confident match"; it is a parsing
// outcome, not a catalog entry.
const (
	TypeHome         PageType = "home"
	TypeProductItem  PageType = "product_item"
	TypeCatalog      PageType = "catalog"
	TypeContacts     PageType = "contacts"
	TypeAbout        PageType = "about"
	TypeServices     PageType = "services"
	TypePortfolio    PageType = "portfolio"
	TypeArticle      PageType = "article"
	TypeFAQ          PageType = "faq"
	TypePricing      PageType = "pricing"
	TypeTeam         PageType = "team"
	TypeTestimonials PageType = "testimonials"
	TypeNotFound     PageType = "404"
	TypeNone         PageType = "none"
)

// CatalogEntry is static configuration for one template page type.
type CatalogEntry struct {
	ID          PageType `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	URLPatterns []string `json:"url_patterns,omitempty"`
	Required    bool     `json:"required"`
}

// DefaultCatalog returns the full template type catalog ordered by priority.
// Lower priority means more important for template assembly.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{ID: TypeHome, Name: "Home", Priority: 1, Required: true,
			Description: "the site's landing page, usually at path /",
			URLPatterns: []string{"/"}},
		{ID: TypeProductItem, Name: "Product page", Priority: 2, Required: true,
			Description: "exactly one priced item with a buy action, not a listing",
			URLPatterns: []string{"/product", "/item", "/tovar"}},
		{ID: TypeCatalog, Name: "Catalog", Priority: 3,
			Description: "a listing of more than three product cards, often with filters and pagination",
			URLPatterns: []string{"/catalog", "/shop", "/store", "/products"}},
		{ID: TypeContacts, Name: "Contacts", Priority: 4, Required: true,
			Description: "contact form, map, phone, or address block",
			URLPatterns: []string{"/contact", "/contacts", "/kontakty"}},
		{ID: TypeAbout, Name: "About", Priority: 5, Required: true,
			Description: "company story, mission, or team overview",
			URLPatterns: []string{"/about", "/o-nas", "/company"}},
		{ID: TypeServices, Name: "Services", Priority: 6, Required: true,
			Description: "a list of services offered, often with descriptions per service",
			URLPatterns: []string{"/services", "/uslugi"}},
		{ID: TypePortfolio, Name: "Portfolio", Priority: 7,
			Description: "gallery of completed works or case studies",
			URLPatterns: []string{"/portfolio", "/works", "/cases"}},
		{ID: TypeArticle, Name: "Article", Priority: 8,
			Description: "a long-form article or blog post",
			URLPatterns: []string{"/blog", "/news", "/article"}},
		{ID: TypeFAQ, Name: "FAQ", Priority: 9,
			Description: "question-and-answer accordion page",
			URLPatterns: []string{"/faq", "/help"}},
		{ID: TypePricing, Name: "Pricing", Priority: 10,
			Description: "pricing table comparing plans or tariffs",
			URLPatterns: []string{"/pricing", "/price", "/tarify"}},
		{ID: TypeTeam, Name: "Team", Priority: 11,
			Description: "people cards with names, roles, and photos",
			URLPatterns: []string{"/team", "/staff"}},
		{ID: TypeTestimonials, Name: "Testimonials", Priority: 12,
			Description: "customer reviews or testimonials page",
			URLPatterns: []string{"/reviews", "/testimonials", "/otzyvy"}},
		{ID: TypeNotFound, Name: "404", Priority: 13, Required: true,
			Description: "the site's not-found error page"},
	}
}

// RequiredTypes returns the set of required page type ids from the catalog.
func RequiredTypes(catalog []CatalogEntry) map[PageType]struct{} {
	req := make(map[PageType]struct{})
	for _, entry := range catalog {
		if entry.Required {
			req[entry.ID] = struct{}{}
		}
	}
	return req
}

// LookupEntry finds a catalog entry by id.
func LookupEntry(catalog []CatalogEntry, id PageType) (CatalogEntry, bool) {
	for _, entry := range catalog {
		if entry.ID == id {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}
