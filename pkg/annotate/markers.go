// Package annotate finds source-currency prices in a live HTML tree and inserts
// converted amounts next to them, keeping those conversions current.
package annotate

import (
	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attributes written into the page.
const (
	// AttrProcessed marks an element whose text has been scanned.
	AttrProcessed = "data-cnyconv-processed"
	// AttrConversion marks a generated conversion element.
	AttrConversion = "data-cnyconv"
	// AttrOriginal holds the source amount a conversion element was computed from.
	AttrOriginal = "data-cnyconv-original"
	// AttrCurrency holds the currency the element was last rendered in.
	AttrCurrency = "data-cnyconv-currency"
	// AttrPrice marks the element wrapping a recognized price.
	AttrPrice = "data-cnyconv-price"
)

const conversionStyle = "color:#2b7cff;margin-left:6px;font-size:0.95em;font-weight:600"

var (
	nonContent         = cascadia.MustCompile("script, style, noscript, template, textarea, title, iframe")
	conversionSelector = cascadia.MustCompile("span[" + AttrConversion + "]")
)

// IsProcessed reports whether el carries the processed marker.
func IsProcessed(el *html.Node) bool {
	return el != nil && el.Type == html.ElementNode && dom.HasAttribute(el, AttrProcessed)
}

// IsConversion reports whether n is a generated conversion element.
func IsConversion(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && dom.HasAttribute(n, AttrConversion)
}

// IsPrice reports whether n wraps a recognized price.
func IsPrice(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && dom.HasAttribute(n, AttrPrice)
}

// ConversionElements returns every conversion element under root in document order.
func ConversionElements(root *html.Node) []*html.Node {
	return cascadia.QueryAll(root, conversionSelector)
}

func markProcessed(el *html.Node) {
	if el != nil && el.Type == html.ElementNode {
		dom.SetAttribute(el, AttrProcessed, "1")
	}
}

// parentElement is the nearest ancestor element of n.
func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// skippable reports whether n is, or sits inside, an element whose text is not
// page content (scripts, styles) or was written by the annotator.
func skippable(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if nonContent.Match(p) || IsConversion(p) || IsPrice(p) {
			return true
		}
	}
	return false
}

func newElement(tag string) *html.Node {
	el := dom.CreateElement(tag)
	el.DataAtom = atom.Lookup([]byte(tag))
	return el
}
