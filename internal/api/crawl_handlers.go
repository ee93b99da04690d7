package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/useneurox-company/sitesnap/internal/store"
)

const (
	defaultCrawlLimit = 50
	maxCrawlLimit     = 500
	repoTimeout       = 3 * time.Second
)

// CrawlHandler exposes read-only crawl history endpoints.
type CrawlHandler struct {
	repo    store.CrawlRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewCrawlHandler wires the repository and logger.
func NewCrawlHandler(repo store.CrawlRepository, logger *zap.Logger) *CrawlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlHandler{repo: repo, timeout: repoTimeout, logger: logger}
}

// ListCrawls handles GET /api/crawls?status=&limit=&offset=. It returns
// {"crawls": [...]} on success, 400 for invalid filters, 503 when history
// persistence is disabled, or 500 if the repository call fails.
func (h *CrawlHandler) ListCrawls(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCrawlLimit, maxCrawlLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.CrawlStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	runs, err := h.repo.ListCrawls(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list crawls failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list crawls")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawls": toCrawlDTOs(runs)})
}

// GetCrawl handles GET /api/crawls/{crawl_id}. It returns {"crawl": {...}}
// on success, 400 for malformed IDs, 404 for unknown runs, 503 when history
// persistence is disabled, or 500 otherwise.
func (h *CrawlHandler) GetCrawl(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl history unavailable")
		return
	}
	id, err := parseCrawlID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetCrawl(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl not found")
			return
		}
		h.logger.Error("get crawl failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load crawl")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"crawl": toCrawlDTO(run)})
}

type crawlDTO struct {
	ID            string     `json:"id"`
	Site          string     `json:"site"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
	PagesCaptured int64      `json:"pagesCaptured"`
	PagesSkipped  int64      `json:"pagesSkipped"`
	PageErrors    int64      `json:"pageErrors"`
}

func toCrawlDTO(run store.CrawlRun) crawlDTO {
	return crawlDTO{
		ID:            run.ID.String(),
		Site:          run.Site,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Status:        string(run.Status),
		ErrorMessage:  run.ErrorMessage,
		PagesCaptured: run.PagesCaptured,
		PagesSkipped:  run.PagesSkipped,
		PageErrors:    run.PageErrors,
	}
}

func toCrawlDTOs(runs []store.CrawlRun) []crawlDTO {
	dtos := make([]crawlDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toCrawlDTO(run))
	}
	return dtos
}

func parseCrawlID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "crawl_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("crawl_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid crawl_id")
	}
	return id, nil
}

func parseStatus(raw string) (store.CrawlStatus, error) {
	status := store.CrawlStatus(strings.ToLower(raw))
	switch status {
	case store.CrawlRunning, store.CrawlSuccess, store.CrawlError:
		return status, nil
	default:
		return "", errors.New("status must be running, success, or error")
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
		offset = val
	}
	return limit, offset, nil
}
