package builtin

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/toolexec"
)

const htmlTextName = "html_text"

// htmlTextTool extracts readable text from an HTML document.
type htmlTextTool struct{}

// NewHTMLText creates the html_text tool.
func NewHTMLText() toolexec.Tool { return htmlTextTool{} }

func (htmlTextTool) Name() string { return htmlTextName }

func (htmlTextTool) Description() string {
	return "Extracts the title, visible text and links from 'html'. Optional 'selector' limits extraction to matching elements."
}

func (htmlTextTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	html, err := stringArg(args, "html", true)
	if err != nil {
		return nil, err
	}
	selector, err := stringArg(args, "selector", false)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, pipeerrors.NewPermanent(err, "Could not parse HTML: %v", err)
	}

	doc.Find("script, style, noscript, iframe, template").Remove()
	title := strings.TrimSpace(doc.Find("title").First().Text())

	scope := doc.Find("body")
	if selector != "" {
		scope = doc.Find(selector)
	}

	var blocks []string
	scope.Each(func(_ int, s *goquery.Selection) {
		if text := collapseWhitespace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	var links []string
	scope.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, strings.TrimSpace(href))
		}
	})

	return map[string]any{
		"title":   title,
		"text":    strings.Join(blocks, "\n"),
		"links":   links,
		"matches": len(blocks),
	}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func htmlTextPolicy() toolexec.Policy {
	return toolexec.Policy{Timeout: 2 * time.Second, Cache: true}
}
