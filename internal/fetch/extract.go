package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/koopa0/lore/internal/chunk"
)

// ErrNoContent indicates a page had no readable text worth indexing.
var ErrNoContent = errors.New("page has no readable content")

// extractDocument turns one fetched page into a delimiter-markup
// document. The readability pass strips navigation and boilerplate;
// the remaining content tree is rendered block by block with h1/h2 as
// major sections and h3 through h6 as subsections.
func extractDocument(pageURL *url.URL, body []byte) (chunk.Document, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return chunk.Document{}, fmt.Errorf("extracting readable content: %w", err)
	}

	root, err := html.Parse(strings.NewReader(article.Content))
	if err != nil {
		return chunk.Document{}, fmt.Errorf("parsing extracted content: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Find("nav, aside, footer, script, style, noscript").Remove()

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = documentName(pageURL)
	}

	b := newMarkupBuilder(title)
	renderBlocks(root, b)
	if !b.hasBody {
		return chunk.Document{}, fmt.Errorf("%s: %w", pageURL, ErrNoContent)
	}
	return chunk.Document{Name: documentName(pageURL), Text: b.String()}, nil
}

// renderBlocks walks the content tree in document order, mapping
// headings and text blocks to markup lines. Handled elements do not
// recurse further; everything else passes through to its children.
func renderBlocks(n *html.Node, b *markupBuilder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2":
			b.section(nodeText(n, false))
			return
		case "h3", "h4", "h5", "h6":
			b.subsection(nodeText(n, false))
			return
		case "p", "blockquote", "dt", "dd", "figcaption":
			b.paragraph(nodeText(n, false))
			return
		case "li":
			// The item's own text first, nested lists after, so
			// sub-items render exactly once.
			b.item(nodeText(n, true))
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "ul" || c.Data == "ol") {
					renderBlocks(c, b)
				}
			}
			return
		case "tr":
			b.paragraph(rowText(n))
			return
		case "pre":
			b.code(nodeText(n, false))
			return
		case "script", "style", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderBlocks(c, b)
	}
}

// nodeText concatenates the text beneath n. With skipNested, list and
// table containers are left out so their items and rows render on
// their own.
func nodeText(n *html.Node, skipNested bool) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "br":
				sb.WriteByte('\n')
				return
			case "ul", "ol", "table":
				if skipNested {
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// rowText joins a table row's cells so the row survives as one line.
func rowText(tr *html.Node) string {
	var cells []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
			if t := collapseSpace(nodeText(n, false)); t != "" {
				cells = append(cells, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(tr)
	return strings.Join(cells, " | ")
}

// markupBuilder accumulates delimiter-markup lines for one page. The
// page title opens the first section; consecutive duplicate headings
// collapse so a page h1 repeating the title does not produce an empty
// section.
type markupBuilder struct {
	sb       strings.Builder
	lastHead string
	hasBody  bool
}

func newMarkupBuilder(title string) *markupBuilder {
	b := &markupBuilder{}
	b.section(title)
	return b
}

func (b *markupBuilder) section(label string) {
	label = collapseSpace(stripDelimiters(label))
	if label == "" || label == b.lastHead {
		return
	}
	b.sb.WriteString("=== " + label + "\n\n")
	b.lastHead = label
}

func (b *markupBuilder) subsection(label string) {
	label = collapseSpace(stripDelimiters(label))
	if label == "" || label == b.lastHead {
		return
	}
	b.sb.WriteString("--- " + label + "\n\n")
	b.lastHead = label
}

func (b *markupBuilder) paragraph(text string) {
	text = collapseSpace(stripDelimiters(text))
	if text == "" {
		return
	}
	b.sb.WriteString(text + "\n\n")
	b.hasBody = true
	b.lastHead = ""
}

func (b *markupBuilder) item(text string) {
	text = collapseSpace(stripDelimiters(text))
	if text == "" {
		return
	}
	b.sb.WriteString("- " + text + "\n")
	b.hasBody = true
	b.lastHead = ""
}

func (b *markupBuilder) code(text string) {
	text = strings.Trim(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if forgesDelimiter(line) {
			line = stripDelimiters(line)
		}
		b.sb.WriteString("    " + line + "\n")
	}
	b.sb.WriteByte('\n')
	b.hasBody = true
	b.lastHead = ""
}

func (b *markupBuilder) String() string { return b.sb.String() }

// forgesDelimiter reports whether a line would be read back as a
// section delimiter. The chunker trims whitespace before matching, so
// indentation is no protection.
func forgesDelimiter(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "===") || strings.HasPrefix(t, "---")
}

// stripDelimiters removes leading delimiter runs from extracted text.
func stripDelimiters(s string) string {
	t := strings.TrimSpace(s)
	for strings.HasPrefix(t, "===") || strings.HasPrefix(t, "---") {
		t = strings.TrimSpace(strings.TrimLeft(t, "=-"))
	}
	return t
}

// collapseSpace folds whitespace runs into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
