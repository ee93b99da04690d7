package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/useneurox-company/sitesnap/internal/storage"
)

// WriteReport persists report.json under the site's artifact tree, plus a
// sibling design-system.json when design tokens were extracted. Write
// failures propagate: a dead artifact store is an environment problem, not a
// page problem.
func WriteReport(ctx context.Context, store storage.Provider, report Report) (string, error) {
	if store == nil {
		return "", fmt.Errorf("blob store is required")
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	reportPath := report.Site + "/report.json"
	uri, err := store.PutObject(ctx, reportPath, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}

	if report.Design != nil {
		designPayload, err := json.MarshalIndent(report.Design, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal design system: %w", err)
		}
		designPath := report.Site + "/design-system.json"
		if _, err := store.PutObject(ctx, designPath, "application/json", bytes.NewReader(designPayload)); err != nil {
			return "", fmt.Errorf("store design system: %w", err)
		}
	}
	return uri, nil
}
