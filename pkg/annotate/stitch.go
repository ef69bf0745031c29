package annotate

import (
	"strings"

	"github.com/go-shiori/dom"
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/price"
	"golang.org/x/net/html"
)

// MaxLookahead bounds how many following siblings Stitch inspects. Only
// transparent siblings (comments, empty text nodes) are skipped; the first
// sibling with content decides.
const MaxLookahead = 3

// embedded content that keeps an otherwise textless element alive
var embedded = []string{"img", "svg", "picture", "video", "audio", "canvas", "iframe", "object", "embed", "input"}

// Continuation is a decimal part consumed from a sibling fragment.
type Continuation struct {
	Raw     string // characters removed from the sibling, leading whitespace included
	Decimal string // separator and digits, e.g. ".50" or ",50"
}

// Stitch looks for the decimal continuation of a price that ends text node n,
// e.g. the <sup>.50</sup> after "¥1,200". On success the consumed characters are
// removed from the sibling (and the sibling itself when nothing is left).
// Siblings that are detached, changed or do not start with a continuation stop
// the search and leave the tree untouched.
func Stitch(doc *page.Document, n *html.Node) (Continuation, bool) {
	parent := n.Parent
	if parent == nil {
		return Continuation{}, false
	}
	sib := n.NextSibling
	for i := 0; sib != nil && i < MaxLookahead; i, sib = i+1, sib.NextSibling {
		if sib.Parent != parent {
			return Continuation{}, false
		}
		switch sib.Type {
		case html.CommentNode:
			continue
		case html.TextNode:
			if sib.Data == "" {
				continue
			}
			return stitchText(doc, sib)
		case html.ElementNode:
			return stitchElement(doc, sib)
		default:
			return Continuation{}, false
		}
	}
	return Continuation{}, false
}

func stitchText(doc *page.Document, t *html.Node) (Continuation, bool) {
	loc := price.ReContinuation.FindStringSubmatchIndex(t.Data)
	if loc == nil {
		return Continuation{}, false
	}
	c := Continuation{Raw: t.Data[:loc[1]], Decimal: t.Data[loc[2]:loc[3]]}
	if rest := t.Data[loc[1]:]; rest == "" {
		doc.RemoveChild(t)
	} else {
		doc.SetData(t, rest)
	}
	return c, true
}

func stitchElement(doc *page.Document, el *html.Node) (Continuation, bool) {
	if skippable(el) || IsProcessed(el) {
		return Continuation{}, false
	}
	full := dom.TextContent(el)
	loc := price.ReContinuation.FindStringSubmatchIndex(full)
	if loc == nil {
		return Continuation{}, false
	}
	raw := full[:loc[1]]
	t := firstText(el)
	// the run has to sit in a single text node, otherwise leave the markup alone
	if t == nil || !strings.HasPrefix(t.Data, raw) {
		return Continuation{}, false
	}
	c := Continuation{Raw: raw, Decimal: full[loc[2]:loc[3]]}
	if rest := t.Data[len(raw):]; rest == "" {
		doc.RemoveChild(t)
	} else {
		doc.SetData(t, rest)
	}
	if isEmptyFragment(el) {
		doc.RemoveChild(el)
	}
	return c, true
}

// firstText returns the first non-empty text node under n in document order.
func firstText(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if c.Data != "" {
				return c
			}
			continue
		}
		if t := firstText(c); t != nil {
			return t
		}
	}
	return nil
}

func isEmptyFragment(el *html.Node) bool {
	if dom.TextContent(el) != "" {
		return false
	}
	return len(dom.GetAllNodesWithTag(el, embedded...)) == 0
}
