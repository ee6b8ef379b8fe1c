package source

import (
	"html"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pagewatch/changewatch/internal/sampler"
)

// textPolicy drops every tag and the content of script, style and title.
var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// markupDoc is a parsed HTML document.
type markupDoc struct {
	doc *goquery.Document
}

func parseMarkup(r io.Reader) (*markupDoc, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &markupDoc{doc: doc}, nil
}

// title returns the trimmed <title> text.
func (m *markupDoc) title() string {
	return strings.TrimSpace(m.doc.Find("title").First().Text())
}

// text returns the plain-text projection of the first element matching
// selector, or of <body> when selector is empty.
func (m *markupDoc) text(selector string) (string, error) {
	var sel *goquery.Selection
	if selector == "" {
		sel = m.doc.Find("body").First()
		if sel.Length() == 0 {
			sel = m.doc.Selection
		}
	} else {
		sel = m.doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", sampler.ErrTargetNotFound
		}
	}

	raw, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", err
	}
	return projectText(raw), nil
}

// projectText strips markup and collapses whitespace runs.
func projectText(markup string) string {
	text := html.UnescapeString(textPolicy.Sanitize(markup))
	return strings.Join(strings.Fields(text), " ")
}
