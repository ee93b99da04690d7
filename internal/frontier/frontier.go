// Package frontier implements the crawl's pending-URL queue and visited set.
package frontier

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Extensions that never enter the frontier. Asset links are handled by the
// capture engine's downloader, not the page pipeline.
var skippedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico", ".avif",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".7z", ".tar", ".gz",
	".mp3", ".mp4", ".avi", ".mov", ".webm",
	".css", ".js", ".json", ".xml", ".woff", ".woff2", ".ttf", ".eot",
}

// Frontier is a FIFO URL queue with a normalized-URL visited set. A URL that
// has ever been dequeued or enqueued is never admitted again, so each page is
// processed at most once per crawl run. All methods are safe for concurrent
// use by crawl workers.
type Frontier struct {
	mu      sync.Mutex
	queue   []string
	queued  map[string]struct{}
	visited map[string]struct{}
}

// New returns an empty Frontier.
func New() *Frontier {
	return &Frontier{
		queued:  make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Normalize reduces a URL to its dedup key: lowercased host plus the path
// without a trailing slash. Fragments, queries, schemes, and default ports do
// not distinguish pages for crawl purposes.
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.TrimSuffix(rawURL, "/")
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	path := u.Path
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}
	return host + path
}

// Enqueue adds a URL to the queue unless its normalized form has already been
// visited or is already waiting. Returns true if the URL was admitted.
func (f *Frontier) Enqueue(rawURL string) bool {
	key := Normalize(rawURL)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visited[key]; ok {
		return false
	}
	if _, ok := f.queued[key]; ok {
		return false
	}
	f.queued[key] = struct{}{}
	f.queue = append(f.queue, rawURL)
	return true
}

// DequeueNext pops the oldest queued URL and marks it visited before
// returning, so no other worker can dequeue the same page. The second return
// is false when the queue is empty.
func (f *Frontier) DequeueNext() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	key := Normalize(next)
	delete(f.queued, key)
	f.visited[key] = struct{}{}
	return next, true
}

// MarkVisited records a URL as seen without queueing it. Used for pages
// reached outside the normal dequeue path, such as the synthetic 404 probe.
func (f *Frontier) MarkVisited(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited[Normalize(rawURL)] = struct{}{}
}

// Visited reports whether the URL's normalized form has been processed.
func (f *Frontier) Visited(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[Normalize(rawURL)]
	return ok
}

// QueueLen returns the number of URLs waiting to be processed.
func (f *Frontier) QueueLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// VisitedCount returns the number of distinct normalized URLs processed.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// Admissible reports whether a discovered link belongs in the frontier at
// all: same host as base, http(s), and not a file or contact-scheme link.
func Admissible(rawURL, baseHost string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return false
	}
	if !strings.EqualFold(u.Host, baseHost) {
		return false
	}
	lower := strings.ToLower(u.Path)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// ResolveLink turns an href discovered on page into an absolute URL, or an
// error when the href is unparseable.
func ResolveLink(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String(), nil
}
