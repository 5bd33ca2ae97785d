package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/spa-harvester/internal/harvest"
)

const inlineDataSelector = `script[type="application/json"]`

// InlineStrategy scans the JSON data blocks embedded in the page. Besides
// resources it records eval-only worker URLs in the context denylist.
type InlineStrategy struct {
	Document harvest.DocumentSource
	Origin   string
}

// Name implements Stage.
func (s *InlineStrategy) Name() string { return "inline-content" }

// Execute implements Stage.
func (s *InlineStrategy) Execute(ctx context.Context, sc harvest.ScanContext) (harvest.ScanContext, error) {
	html, err := s.Document.HTML(ctx)
	if err != nil {
		return sc, fmt.Errorf("read page document: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return sc, fmt.Errorf("parse page document: %w", err)
	}

	var found, denied []string
	doc.Find(inlineDataSelector).Each(func(_ int, sel *goquery.Selection) {
		content := sel.Text()
		if content == "" {
			return
		}
		denied = append(denied, ExtractEvalWorkers(content, s.Origin)...)
		found = append(found, ExtractURLs(content, s.Origin)...)
	})
	return sc.MergeURLs(found).WithDenylist(denied), nil
}
