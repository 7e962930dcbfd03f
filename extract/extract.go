// Package extract turns fetched citation HTML into plain text through a
// three-tier cascade: readability parsing, structural paragraph extraction,
// and finally a bare tag strip. The caller judges the result against the
// minimum content length; falling short is an extraction failure, never a
// relevance denial.
package extract

import (
	"fmt"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"citation-processor/domain"
)

// Tier identifies which cascade stage produced the text.
type Tier string

const (
	TierReadability Tier = "readability"
	TierStructural  Tier = "structural"
	TierStripped    Tier = "stripped"
)

// readabilityFloor is the minimum readability output length before the
// cascade distrusts it and falls through. Readability sometimes returns
// only the title or metadata for pages it cannot segment.
const readabilityFloor = 200

// Result is the outcome of a successful extraction.
type Result struct {
	Text  string
	Title string
	Tier  Tier
}

// Extractor runs the cascade with a configured content floor.
type Extractor struct {
	minContentLength int
}

// New creates an extractor that rejects output shorter than minContentLength.
func New(minContentLength int) *Extractor {
	return &Extractor{minContentLength: minContentLength}
}

// Extract converts raw HTML to plain text. It returns
// domain.ErrExtractionInsufficient when every tier produces less than the
// configured floor.
func (e *Extractor) Extract(raw string) (*Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty document", domain.ErrExtractionInsufficient)
	}

	title := ExtractTitle(trimmed)

	// Already plain text: no cascade needed.
	if !strings.Contains(trimmed, "<") {
		text := normalizeWhitespace(trimmed)
		if len(text) < e.minContentLength {
			return nil, fmt.Errorf("%w: plain text is %d chars, floor is %d",
				domain.ErrExtractionInsufficient, len(text), e.minContentLength)
		}
		return &Result{Text: text, Title: title, Tier: TierStripped}, nil
	}

	cleaned := removeChrome(trimmed)

	if text, ok := e.readabilityPass(cleaned); ok {
		return &Result{Text: text, Title: title, Tier: TierReadability}, nil
	}

	if text := structuralPass(cleaned); len(text) >= e.minContentLength {
		return &Result{Text: text, Title: title, Tier: TierStructural}, nil
	}

	text := StripTags(trimmed)
	if len(text) >= e.minContentLength {
		return &Result{Text: text, Title: title, Tier: TierStripped}, nil
	}

	return nil, fmt.Errorf("%w: best tier produced %d chars, floor is %d",
		domain.ErrExtractionInsufficient, len(text), e.minContentLength)
}

// readabilityPass runs go-readability and validates its output.
func (e *Extractor) readabilityPass(html string) (string, bool) {
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil {
		return "", false
	}

	var textBuf strings.Builder
	if err := article.RenderText(&textBuf); err != nil {
		return "", false
	}
	text := strings.TrimSpace(textBuf.String())
	if len(text) < readabilityFloor {
		return "", false
	}

	// Prefer re-segmenting readability's cleaned HTML so paragraph breaks
	// survive into the plain text.
	var htmlBuf strings.Builder
	if err := article.RenderHTML(&htmlBuf); err == nil {
		if segmented := structuralPass(htmlBuf.String()); segmented != "" {
			text = segmented
		}
	} else {
		text = normalizeWhitespace(text)
	}

	if len(text) < e.minContentLength {
		return "", false
	}
	return text, true
}

// removeChrome strips navigation, scripts, embeds, and social widgets so
// downstream tiers only see candidate content.
func removeChrome(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("head script, body script, style, noscript, aside, nav, header, footer").Remove()
	doc.Find("iframe, embed, object, video, audio, canvas").Remove()
	doc.Find("[class*='social'], [class*='share'], [class*='comment'], [id*='comment']").Remove()

	cleaned, err := doc.Html()
	if err != nil || cleaned == "" {
		return html
	}
	return cleaned
}

// structuralPass extracts headers, paragraphs, code blocks, and list items,
// joining them with blank lines.
func structuralPass(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var paragraphs []string
	collect := func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(collect)
	doc.Find("p").Each(collect)
	doc.Find("pre").Each(collect)
	doc.Find("li").Each(collect)

	return strings.Join(paragraphs, "\n\n")
}

// StripTags removes all HTML tags and collapses whitespace.
func StripTags(raw string) string {
	p := bluemonday.StrictPolicy()
	return normalizeWhitespace(p.Sanitize(raw))
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ExtractTitle pulls a page title out of HTML. Priority order: <title>,
// og:title, first <h1>.
func ExtractTitle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}

	if og, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}

	return strings.TrimSpace(doc.Find("h1").First().Text())
}
