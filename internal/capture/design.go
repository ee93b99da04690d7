package capture

import (
	"context"
	"fmt"
)

// DesignTokens is the site-level design summary extracted once per crawl.
type DesignTokens struct {
	Colors     ColorTokens      `json:"colors"`
	Typography TypographyTokens `json:"typography"`
}

// ColorTokens holds the dominant site colors.
type ColorTokens struct {
	Primary    string   `json:"primary,omitempty"`
	Secondary  string   `json:"secondary,omitempty"`
	Accent     string   `json:"accent,omitempty"`
	Background string   `json:"background,omitempty"`
	Text       string   `json:"text,omitempty"`
	Palette    []string `json:"palette,omitempty"`
}

// TypographyTokens holds font families and per-tag styles.
type TypographyTokens struct {
	Fonts  []string             `json:"fonts,omitempty"`
	Styles map[string]TextStyle `json:"styles,omitempty"`
}

// TextStyle is the computed style of one representative element.
type TextStyle struct {
	FontFamily string `json:"fontFamily,omitempty"`
	FontSize   string `json:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	LineHeight string `json:"lineHeight,omitempty"`
	Color      string `json:"color,omitempty"`
}

// designTokensScript samples computed styles: background and text colors from
// the body, button/link colors as primary/accent candidates, a frequency-
// ordered palette capped at 12, and typography from representative tags.
const designTokensScript = `(function() {
	const freq = new Map();
	const note = (c) => {
		if (!c || c === 'transparent' || c.startsWith('rgba(0, 0, 0, 0)')) { return; }
		freq.set(c, (freq.get(c) || 0) + 1);
	};
	const style = (el) => el ? window.getComputedStyle(el) : null;

	const sample = document.querySelectorAll('body, header, nav, main, footer, h1, h2, h3, p, a, button, .btn');
	for (const el of sample) {
		const s = style(el);
		note(s.color);
		note(s.backgroundColor);
	}
	const palette = [...freq.entries()].sort((a, b) => b[1] - a[1]).map(e => e[0]).slice(0, 12);

	const bodyStyle = style(document.body);
	const buttonStyle = style(document.querySelector('button, .btn, a.button, input[type="submit"]'));
	const linkStyle = style(document.querySelector('a[href]'));
	const headerStyle = style(document.querySelector('header, nav'));

	const fonts = [];
	const noteFont = (s) => {
		if (!s) { return; }
		const f = s.fontFamily;
		if (f && !fonts.includes(f)) { fonts.push(f); }
	};
	const styles = {};
	for (const tag of ['h1', 'h2', 'h3', 'p', 'a', 'button']) {
		const s = style(document.querySelector(tag));
		if (!s) { continue; }
		noteFont(s);
		styles[tag] = {
			fontFamily: s.fontFamily,
			fontSize: s.fontSize,
			fontWeight: s.fontWeight,
			lineHeight: s.lineHeight,
			color: s.color
		};
	}

	return {
		colors: {
			primary: buttonStyle ? buttonStyle.backgroundColor : '',
			secondary: headerStyle ? headerStyle.backgroundColor : '',
			accent: linkStyle ? linkStyle.color : '',
			background: bodyStyle ? bodyStyle.backgroundColor : '',
			text: bodyStyle ? bodyStyle.color : '',
			palette: palette
		},
		typography: {
			fonts: fonts,
			styles: styles
		}
	};
})()`

// ExtractDesignTokens reads the site's design summary from the loaded page.
// It runs at most once per crawl; the orchestrator guards the single-set
// discipline.
func (e *Engine) ExtractDesignTokens(ctx context.Context, sess Session) (*DesignTokens, error) {
	var tokens DesignTokens
	if err := sess.Evaluate(ctx, designTokensScript, &tokens); err != nil {
		return nil, fmt.Errorf("extract design tokens: %w", err)
	}
	return &tokens, nil
}
