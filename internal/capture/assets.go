package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// AssetOptions controls the once-per-crawl site image download.
type AssetOptions struct {
	// MaxImages caps the number of downloaded images (default 30).
	MaxImages int
	// UserAgent is sent with asset requests when non-empty.
	UserAgent string
}

const defaultMaxImages = 30

// DownloadImages fetches the images referenced by the given page and stores
// them under <site>/images/. It runs at most once per crawl, guarded by the
// orchestrator. Individual asset failures are logged, not fatal.
func (e *Engine) DownloadImages(ctx context.Context, pageURL string, opts AssetOptions) ([]string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	maxImages := opts.MaxImages
	if maxImages <= 0 {
		maxImages = defaultMaxImages
	}

	collectorOpts := []colly.CollectorOption{
		colly.AllowedDomains(host, "www."+host),
		colly.MaxDepth(1),
	}
	if opts.UserAgent != "" {
		collectorOpts = append(collectorOpts, colly.UserAgent(opts.UserAgent))
	}
	c := colly.NewCollector(collectorOpts...)

	var (
		mu     sync.Mutex
		stored []string
		seen   = map[string]struct{}{}
	)

	c.OnHTML("img[src]", func(el *colly.HTMLElement) {
		src := el.Request.AbsoluteURL(el.Attr("src"))
		if src == "" {
			return
		}
		mu.Lock()
		_, dup := seen[src]
		full := len(seen) >= maxImages
		if !dup && !full {
			seen[src] = struct{}{}
		}
		mu.Unlock()
		if dup || full {
			return
		}
		if err := el.Request.Visit(src); err != nil {
			e.logger.Debug("queue image failed", zap.String("src", src), zap.Error(err))
		}
	})

	c.OnResponse(func(resp *colly.Response) {
		contentType := strings.ToLower(resp.Headers.Get("Content-Type"))
		if !strings.HasPrefix(contentType, "image/") {
			return
		}
		name := imageName(resp.Request.URL, len(stored))
		objectPath := fmt.Sprintf("%s/images/%s", host, name)
		if _, err := e.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(resp.Body)); err != nil {
			e.logger.Warn("store image failed", zap.String("src", resp.Request.URL.String()), zap.Error(err))
			return
		}
		mu.Lock()
		stored = append(stored, objectPath)
		mu.Unlock()
	})

	c.OnError(func(resp *colly.Response, err error) {
		e.logger.Debug("asset request failed",
			zap.String("url", resp.Request.URL.String()), zap.Error(err))
	})

	if err := c.Visit(pageURL); err != nil {
		return stored, fmt.Errorf("visit page for assets: %w", err)
	}
	c.Wait()
	return stored, nil
}

// imageName derives a stored filename from the source URL, falling back to an
// index-based name when the path has none.
func imageName(src *url.URL, index int) string {
	base := path.Base(src.Path)
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("image-%d", index+1)
	}
	slug := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSuffix(base, path.Ext(base))), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = fmt.Sprintf("image-%d", index+1)
	}
	ext := strings.ToLower(path.Ext(base))
	if ext == "" {
		ext = ".img"
	}
	return slug + ext
}
