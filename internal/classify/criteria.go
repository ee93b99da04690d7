package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/analyzer"
	"github.com/useneurox-company/sitesnap/internal/oracle"
)

// PageRef identifies the page being classified.
type PageRef struct {
	URL      string
	Pathname string
	Title    string
}

// CriteriaClassifier decides capture-or-skip against a free-text user
// criterion. The policy is fail-open: on oracle errors or non-committal
// answers the page is captured, because missing a page is worse than an
// extra screenshot.
type CriteriaClassifier struct {
	oracle oracle.Oracle
	logger *zap.Logger
}

// NewCriteriaClassifier wires the oracle and logger.
func NewCriteriaClassifier(o oracle.Oracle, logger *zap.Logger) *CriteriaClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CriteriaClassifier{oracle: o, logger: logger}
}

// Match reports whether the page satisfies the criterion. An empty criterion
// matches everything without consulting the oracle.
func (c *CriteriaClassifier) Match(ctx context.Context, criterion string, ref PageRef, fp analyzer.Fingerprint) bool {
	if strings.TrimSpace(criterion) == "" {
		return true
	}

	answer, err := c.oracle.Ask(ctx, buildCriteriaPrompt(criterion, ref, fp))
	if err != nil {
		c.logger.Warn("criteria oracle failed, capturing page",
			zap.String("url", ref.URL), zap.Error(err))
		return true
	}

	switch parseYesNo(answer) {
	case answerNo:
		return false
	case answerYes:
		return true
	default:
		c.logger.Debug("non-committal criteria answer, capturing page",
			zap.String("url", ref.URL), zap.String("answer", answer))
		return true
	}
}

func buildCriteriaPrompt(criterion string, ref PageRef, fp analyzer.Fingerprint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Does this web page match the criterion %q?\n\n", criterion)
	fmt.Fprintf(&b, "URL: %s\nPath: %s\nTitle: %s\n\n", ref.URL, ref.Pathname, ref.Title)
	b.WriteString("Page signals:\n")
	b.WriteString(fp.Describe())
	b.WriteString("\nDefinitions:\n")
	b.WriteString("- A \"product card\" page shows exactly one priced item with a buy action; a listing is not a product card.\n")
	b.WriteString("- A \"catalog\" page shows more than 3 product cards.\n")
	b.WriteString("- A \"contacts\" page has a contact form, a map, or an address block.\n")
	b.WriteString("- The \"home\" page is the one at path \"/\".\n")
	b.WriteString("\nAnswer strictly YES or NO.")
	return b.String()
}

type yesNo int

const (
	answerUnknown yesNo = iota
	answerYes
	answerNo
)

func parseYesNo(answer string) yesNo {
	fields := strings.Fields(strings.ToLower(answer))
	if len(fields) == 0 {
		return answerUnknown
	}
	switch strings.Trim(fields[0], `."'!,:`) {
	case "yes":
		return answerYes
	case "no":
		return answerNo
	default:
		return answerUnknown
	}
}
