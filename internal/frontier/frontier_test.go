package frontier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeIdempotent verifies normalizing twice equals normalizing once.
func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	urls := []string{
		"http://a.com/x/",
		"https://A.COM/x",
		"http://a.com/x#section",
		"http://a.com:80/x",
		"https://a.com:443/x/",
		"http://a.com/",
	}
	for _, raw := range urls {
		once := Normalize(raw)
		require.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", raw)
	}
}

// TestNormalizeTrailingSlashAndFragment verifies URLs that differ only by
// trailing slash or fragment collapse to the same key.
func TestNormalizeTrailingSlashAndFragment(t *testing.T) {
	t.Parallel()

	require.Equal(t, Normalize("http://a.com/x/"), Normalize("http://a.com/x"))
	require.Equal(t, Normalize("http://a.com/x#top"), Normalize("http://a.com/x"))
	require.Equal(t, Normalize("http://a.com/"), Normalize("http://a.com"))
	require.NotEqual(t, Normalize("http://a.com/x"), Normalize("http://a.com/y"))
}

// TestEnqueueDeduplicates asserts a URL can be admitted at most once, in any
// of its equivalent spellings.
func TestEnqueueDeduplicates(t *testing.T) {
	t.Parallel()

	f := New()
	require.True(t, f.Enqueue("https://shop.example/widgets"))
	require.False(t, f.Enqueue("https://shop.example/widgets/"))
	require.False(t, f.Enqueue("https://shop.example/widgets#reviews"))
	require.Equal(t, 1, f.QueueLen())
}

// TestDequeueMarksVisited asserts the FIFO order and that a dequeued URL can
// never re-enter the frontier.
func TestDequeueMarksVisited(t *testing.T) {
	t.Parallel()

	f := New()
	f.Enqueue("https://shop.example/")
	f.Enqueue("https://shop.example/about")

	first, ok := f.DequeueNext()
	require.True(t, ok)
	require.Equal(t, "https://shop.example/", first)
	require.True(t, f.Visited("https://shop.example/"))

	require.False(t, f.Enqueue("https://shop.example/"))

	second, ok := f.DequeueNext()
	require.True(t, ok)
	require.Equal(t, "https://shop.example/about", second)

	_, ok = f.DequeueNext()
	require.False(t, ok)
}

// TestDequeueConcurrentNoDuplicates hammers the frontier from several
// goroutines and asserts every URL is handed out exactly once.
func TestDequeueConcurrentNoDuplicates(t *testing.T) {
	t.Parallel()

	f := New()
	const n = 200
	for i := 0; i < n; i++ {
		f.Enqueue("https://shop.example/p/" + string(rune('a'+i%26)) + string(rune('0'+i/26)))
	}
	total := f.QueueLen()

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, ok := f.DequeueNext()
				if !ok {
					return
				}
				mu.Lock()
				seen[u]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for u, count := range seen {
		require.Equal(t, 1, count, "url %s dequeued more than once", u)
	}
}

// TestAdmissibleFilters verifies off-host, asset, and contact-scheme links
// never enter the frontier.
func TestAdmissibleFilters(t *testing.T) {
	t.Parallel()

	const host = "shop.example"
	cases := []struct {
		url  string
		want bool
	}{
		{"https://shop.example/catalog", true},
		{"http://shop.example/", true},
		{"https://other.example/catalog", false},
		{"https://shop.example/logo.png", false},
		{"https://shop.example/report.PDF", false},
		{"https://shop.example/bundle.tar.gz", false},
		{"mailto:sales@shop.example", false},
		{"tel:+15551234567", false},
		{"javascript:void(0)", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Admissible(tc.url, host), "url %s", tc.url)
	}
}

// TestResolveLink verifies relative hrefs resolve against the page URL and
// fragments are stripped.
func TestResolveLink(t *testing.T) {
	t.Parallel()

	got, err := ResolveLink("https://shop.example/catalog/", "../about#team")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example/about", got)

	got, err = ResolveLink("https://shop.example/", "/contact")
	require.NoError(t, err)
	require.Equal(t, "https://shop.example/contact", got)
}
