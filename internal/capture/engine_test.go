package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/useneurox-company/sitesnap/internal/imaging"
	"github.com/useneurox-company/sitesnap/internal/storage/memory"
)

// fakeSession scripts browser behavior per method. Zero value succeeds at
// everything and returns a tiny PNG-ish payload for screenshots.
type fakeSession struct {
	viewportErr     map[string]error
	fullShotErr     error
	shotErr         error
	htmlErr         error
	html            string
	candidates      interactiveCandidates
	tokens          DesignTokens
	evaluateErr     error
	clicked         []string
	hovered         []string
	escapes         int
	viewports       []string
	overlaysHidden  int
	overlayCalled   bool
	fullShots       int
	viewportShots   int
	currentViewport string
}

func (f *fakeSession) SetViewport(_ context.Context, width, height int, _ bool) error {
	key := viewportKey(width, height)
	f.currentViewport = key
	f.viewports = append(f.viewports, key)
	if err, ok := f.viewportErr[key]; ok {
		return err
	}
	return nil
}

func viewportKey(width, height int) string {
	switch {
	case width == 1920:
		return "desktop"
	case width == 768:
		return "tablet"
	default:
		return "mobile"
	}
}

func (f *fakeSession) Screenshot(context.Context) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	f.viewportShots++
	return []byte("png:" + f.currentViewport), nil
}

func (f *fakeSession) FullScreenshot(context.Context) ([]byte, error) {
	if f.fullShotErr != nil {
		return nil, f.fullShotErr
	}
	f.fullShots++
	return []byte("fullpng:" + f.currentViewport), nil
}

func (f *fakeSession) HTML(context.Context) (string, error) {
	if f.htmlErr != nil {
		return "", f.htmlErr
	}
	if f.html != "" {
		return f.html, nil
	}
	return "<html><head></head><body></body></html>", nil
}

func (f *fakeSession) Evaluate(_ context.Context, expression string, out any) error {
	if f.evaluateErr != nil {
		return f.evaluateErr
	}
	switch dest := out.(type) {
	case *interactiveCandidates:
		*dest = f.candidates
	case *DesignTokens:
		*dest = f.tokens
	case *bool:
		*dest = true
	case *int:
		*dest = f.overlaysHidden
	}
	_ = expression
	return nil
}

func (f *fakeSession) Click(_ context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakeSession) Hover(_ context.Context, selector string) error {
	f.hovered = append(f.hovered, selector)
	return nil
}

func (f *fakeSession) PressEscape(context.Context) error {
	f.escapes++
	return nil
}

func (f *fakeSession) DismissOverlays(context.Context) error {
	f.overlayCalled = true
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *memory.BlobStore) {
	t.Helper()
	store := memory.NewBlobStore()
	engine, err := NewEngine(store, imaging.NoopCompressor{}, nil)
	require.NoError(t, err)
	return engine, store
}

func TestCapturePageAllDevices(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	sess := &fakeSession{}

	var shots []string
	res, err := engine.CapturePage(context.Background(), sess, "shop.example", "/shop/widget", Options{
		FullPage:        true,
		SaveHTML:        true,
		ExtractMeta:     true,
		DismissOverlays: true,
	}, func(device string, _ time.Duration) {
		shots = append(shots, device)
	})
	require.NoError(t, err)

	require.Equal(t, "shop.example/desktop/shop-widget.png", res.Files["desktop"])
	require.Equal(t, "shop.example/tablet/shop-widget.png", res.Files["tablet"])
	require.Equal(t, "shop.example/mobile/shop-widget.png", res.Files["mobile"])
	require.Equal(t, "shop.example/html/shop-widget.html", res.Files["html"])
	require.ElementsMatch(t, []string{"desktop", "tablet", "mobile"}, shots)
	require.True(t, sess.overlayCalled)
	require.Equal(t, 3, sess.fullShots)
	require.Equal(t, 4, store.Len())
}

func TestCapturePageFullPageFallback(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	sess := &fakeSession{fullShotErr: errors.New("page too large")}

	res, err := engine.CapturePage(context.Background(), sess, "a.example", "/", Options{
		Devices:  []string{"desktop"},
		FullPage: true,
	}, nil)
	require.NoError(t, err)
	require.Contains(t, res.Files, "desktop")
	require.Equal(t, 1, sess.viewportShots, "fallback must use viewport capture")
}

func TestCapturePageDeviceFailureIsolated(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	sess := &fakeSession{
		viewportErr: map[string]error{"tablet": errors.New("emulation failed")},
	}

	res, err := engine.CapturePage(context.Background(), sess, "a.example", "/about", Options{}, nil)
	require.NoError(t, err)
	require.Contains(t, res.Files, "desktop")
	require.Contains(t, res.Files, "mobile")
	require.NotContains(t, res.Files, "tablet")
}

func TestCapturePageAllDevicesFailing(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	sess := &fakeSession{shotErr: errors.New("render crashed")}

	_, err := engine.CapturePage(context.Background(), sess, "a.example", "/", Options{
		Devices: []string{"desktop"},
	}, nil)
	require.Error(t, err)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/":                "home",
		"":                 "home",
		"/about":           "about",
		"/shop/widget":     "shop-widget",
		"/Shop/Widget/":    "shop-widget",
		"/o-nas/команда":   "o-nas-команда",
		"/weird//!!path//": "weird-path",
	}
	for input, want := range cases {
		require.Equal(t, want, Slug(input), "Slug(%q)", input)
	}
}

func TestSlugTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// One leading ASCII byte shifts every two-byte Cyrillic rune off an even
	// offset, so a naive byte cut would land mid-rune.
	slug := Slug("/a" + strings.Repeat("к", 130))
	require.LessOrEqual(t, len(slug), 120)
	require.True(t, utf8.ValidString(slug), "slug %q must be valid UTF-8", slug)
}

func TestExtractMeta(t *testing.T) {
	t.Parallel()

	html := `<html lang="ru"><head>
		<meta name="description" content="Widget shop">
		<meta property="og:title" content="Widgets">
		<meta property="og:image" content="/og.png">
		<link rel="canonical" href="https://shop.example/">
		<link rel="shortcut icon" href="/favicon.ico">
	</head><body></body></html>`

	meta, err := ExtractMeta(html)
	require.NoError(t, err)
	require.Equal(t, "Widget shop", meta.Description)
	require.Equal(t, "Widgets", meta.OGTitle)
	require.Equal(t, "/og.png", meta.OGImage)
	require.Equal(t, "https://shop.example/", meta.Canonical)
	require.Equal(t, "/favicon.ico", meta.Favicon)
	require.Equal(t, "ru", meta.Lang)
}

func TestInteractiveCaptureRespectsLimits(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	hover := make([]string, 12)
	tabs := make([]string, 9)
	modals := make([]string, 8)
	for i := range hover {
		hover[i] = sel("h", i)
	}
	for i := range tabs {
		tabs[i] = sel("t", i)
	}
	for i := range modals {
		modals[i] = sel("m", i)
	}
	sess := &fakeSession{candidates: interactiveCandidates{Hover: hover, Tabs: tabs, Modals: modals}}

	res, err := engine.CapturePage(context.Background(), sess, "a.example", "/", Options{
		Devices:     []string{"desktop"},
		Interactive: true,
	}, nil)
	require.NoError(t, err)

	var kinds = map[string]int{}
	for _, state := range res.Interactive {
		kinds[state.Kind]++
		require.NotEmpty(t, state.File)
	}
	require.Equal(t, maxHoverStates, kinds["hover"])
	require.Equal(t, maxTabStates, kinds["tab"])
	require.Equal(t, maxModalStates, kinds["modal"])
	require.Len(t, sess.hovered, maxHoverStates)
	require.Equal(t, maxModalStates, sess.escapes, "every modal must be dismissed")
}

func sel(prefix string, i int) string {
	return "[data-ss-state=\"" + prefix + "-" + strings.Repeat("x", i+1) + "\"]"
}

func TestExtractDesignTokens(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	sess := &fakeSession{tokens: DesignTokens{
		Colors: ColorTokens{Primary: "rgb(10, 20, 30)", Palette: []string{"rgb(10, 20, 30)"}},
		Typography: TypographyTokens{
			Fonts:  []string{"Inter, sans-serif"},
			Styles: map[string]TextStyle{"h1": {FontSize: "32px"}},
		},
	}}

	tokens, err := engine.ExtractDesignTokens(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, "rgb(10, 20, 30)", tokens.Colors.Primary)
	require.Equal(t, "32px", tokens.Typography.Styles["h1"].FontSize)
}

func TestExtractDesignTokensError(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	sess := &fakeSession{evaluateErr: errors.New("execution context destroyed")}

	_, err := engine.ExtractDesignTokens(context.Background(), sess)
	require.Error(t, err)
}
