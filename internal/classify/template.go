package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/analyzer"
	"github.com/useneurox-company/sitesnap/internal/oracle"
)

// TemplatePage is the classification input: page identity plus the HTTP
// status observed when it was loaded.
type TemplatePage struct {
	PageRef
	StatusCode int
}

// TemplateClassifier maps a page to one catalog type id. A deterministic
// status/title pass catches 404 pages without an oracle call; everything else
// goes to the oracle with the full list of allowed ids. The policy is
// fail-skip: unknown or unparseable answers classify as TypeNone.
type TemplateClassifier struct {
	oracle  oracle.Oracle
	catalog []CatalogEntry
	logger  *zap.Logger
}

// NewTemplateClassifier wires the oracle and catalog.
func NewTemplateClassifier(o oracle.Oracle, catalog []CatalogEntry, logger *zap.Logger) *TemplateClassifier {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateClassifier{oracle: o, catalog: catalog, logger: logger}
}

// IsNotFound reports whether status or title mark the page as a 404 without
// consulting the oracle.
func IsNotFound(statusCode int, title string) bool {
	if statusCode == 404 {
		return true
	}
	lower := strings.ToLower(title)
	return strings.Contains(lower, "404") || strings.Contains(lower, "not found")
}

// Classify returns the page's template type. TypeNone means the page plays no
// canonical role; it is a normal outcome, never an error.
func (c *TemplateClassifier) Classify(ctx context.Context, page TemplatePage, fp analyzer.Fingerprint) PageType {
	if IsNotFound(page.StatusCode, page.Title) {
		return TypeNotFound
	}

	answer, err := c.oracle.Ask(ctx, c.buildPrompt(page, fp))
	if err != nil {
		c.logger.Warn("template oracle failed, skipping page",
			zap.String("url", page.URL), zap.Error(err))
		return TypeNone
	}
	return c.parseAnswer(answer, page.URL)
}

func (c *TemplateClassifier) buildPrompt(page TemplatePage, fp analyzer.Fingerprint) string {
	var b strings.Builder
	b.WriteString("Classify this web page as exactly one of the allowed page types.\n\n")
	fmt.Fprintf(&b, "URL: %s\nPath: %s\nTitle: %s\n\n", page.URL, page.Pathname, page.Title)

	b.WriteString("Page content:\n")
	b.WriteString(fp.Describe())
	if tags := fp.FeatureTags(); len(tags) > 0 {
		fmt.Fprintf(&b, "Feature tags: %s\n", strings.Join(tags, ", "))
	}

	b.WriteString("\nAllowed types:\n")
	for _, entry := range c.catalog {
		fmt.Fprintf(&b, "- %s: %s", entry.ID, entry.Description)
		if len(entry.URLPatterns) > 0 {
			fmt.Fprintf(&b, " (typical paths: %s)", strings.Join(entry.URLPatterns, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer with exactly one type id from the list, or \"none\" if no type fits.")
	return b.String()
}

// parseAnswer accepts only an exact catalog id after normalization; anything
// else is TypeNone.
func (c *TemplateClassifier) parseAnswer(answer, url string) PageType {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, `."'`+"`")
	if normalized == string(TypeNone) {
		return TypeNone
	}
	for _, entry := range c.catalog {
		if normalized == string(entry.ID) {
			return entry.ID
		}
	}
	c.logger.Debug("unparseable template answer, treating as none",
		zap.String("url", url), zap.String("answer", answer))
	return TypeNone
}
