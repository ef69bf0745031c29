package annotate

import (
	"errors"

	"github.com/go-shiori/dom"
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/price"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// ErrDetached is returned when the node to annotate is no longer in the tree.
var ErrDetached = errors.New("text node detached")

// RateSource provides the current rate for a target currency.
type RateSource interface {
	Get(code string) (float64, bool)
}

// CurrencySource provides the currently selected target currency.
type CurrencySource interface {
	Current() string
}

// Stitched is a price match extended with a continuation consumed from a
// following sibling, and its parsed value.
type Stitched struct {
	price.Match
	Continuation Continuation
	Value        decimal.Decimal
}

// Display is the price text as it now appears in the page.
func (s Stitched) Display() string { return s.Raw + s.Continuation.Raw }

// Annotator rewrites one text node at a time.
type Annotator struct {
	doc      *page.Document
	rates    RateSource
	currency CurrencySource
	format   *price.Formatter
	log      zerolog.Logger

	// text nodes left alone because the selected currency had no rate
	deferred []*html.Node
	pending  map[*html.Node]struct{}
}

// NewAnnotator creates an annotator writing into doc.
func NewAnnotator(doc *page.Document, rates RateSource, currency CurrencySource, format *price.Formatter, log zerolog.Logger) *Annotator {
	return &Annotator{
		doc:      doc,
		rates:    rates,
		currency: currency,
		format:   format,
		log:      log.With().Str("component", "annotator").Logger(),
		pending:  make(map[*html.Node]struct{}),
	}
}

// Pending returns how many text nodes wait for a rate.
func (a *Annotator) Pending() int { return len(a.deferred) }

// RetryDeferred annotates again every deferred text node that is still part of
// the document and returns the number of conversion elements created. Nodes
// that still have no rate are deferred again.
func (a *Annotator) RetryDeferred() int {
	nodes := a.deferred
	a.deferred = nil
	clear(a.pending)

	created := 0
	for _, n := range nodes {
		if !a.attached(n) {
			continue
		}
		c, err := a.Annotate(n)
		if err != nil {
			a.log.Debug().Err(err).Msg("Skipping deferred node")
			continue
		}
		created += c
	}
	return created
}

func (a *Annotator) attached(n *html.Node) bool {
	root := a.doc.Root()
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func (a *Annotator) postpone(n *html.Node) {
	if _, ok := a.pending[n]; ok {
		return
	}
	a.pending[n] = struct{}{}
	a.deferred = append(a.deferred, n)
}

// Annotate replaces text node n with the same text where every price is
// wrapped in a price element followed by a conversion element, then marks the
// parent element processed. It returns the number of conversion elements
// created. Nodes without a symbol, inside a script or inside generated markup
// are left untouched; whether the parent was already processed is not checked
// here, so text added later under a processed element still converts.
//
// When the selected currency has no rate the node is not modified and is kept
// for RetryDeferred.
func (a *Annotator) Annotate(n *html.Node) (int, error) {
	if n == nil || n.Type != html.TextNode {
		return 0, nil
	}
	if n.Parent == nil {
		return 0, ErrDetached
	}
	if !price.ContainsSymbol(n.Data) || skippable(n) {
		return 0, nil
	}
	matches := price.FindMatches(n.Data)
	if len(matches) == 0 {
		return 0, nil
	}

	code := a.currency.Current()
	rate, ok := a.rates.Get(code)
	if !ok {
		a.postpone(n)
		a.log.Debug().Str("currency", code).Msg("No rate yet, deferring node")
		return 0, nil
	}

	original := n.Data
	var (
		out     []*html.Node
		last    int
		created int
	)
	text := func(s string) {
		if s != "" {
			out = append(out, dom.CreateTextNode(s))
		}
	}

	for i, m := range matches {
		text(original[last:m.Start])
		last = m.End

		s := Stitched{Match: m}
		decimalPart := m.Fraction
		// only a price ending the node can continue in the next sibling
		if i == len(matches)-1 && m.End == len(original) && !m.HasFraction() {
			if c, ok := Stitch(a.doc, n); ok {
				s.Continuation = c
				decimalPart = c.Decimal
			}
		}
		out = append(out, priceElement(s.Display()))

		v, err := price.ParseAmount(m.IntegerPart, decimalPart)
		if err != nil {
			a.log.Debug().Err(err).Str("price", s.Display()).Msg("Skipping malformed price")
			continue
		}
		s.Value = v
		out = append(out, a.conversionElement(s.Value, code, rate))
		created++
	}
	text(original[last:])

	container := parentElement(n)
	if !a.doc.ReplaceWith(n, out...) {
		return 0, ErrDetached
	}
	markProcessed(container)
	return created, nil
}

// priceElement wraps the price text as it appears in the page.
func priceElement(display string) *html.Node {
	span := newElement("span")
	dom.SetAttribute(span, AttrPrice, "1")
	dom.SetAttribute(span, AttrProcessed, "1")
	span.AppendChild(dom.CreateTextNode(display))
	return span
}

func (a *Annotator) conversionElement(value decimal.Decimal, code string, rate float64) *html.Node {
	span := newElement("span")
	dom.SetAttribute(span, "style", conversionStyle)
	dom.SetAttribute(span, AttrConversion, "1")
	dom.SetAttribute(span, AttrOriginal, value.String())
	dom.SetAttribute(span, AttrCurrency, code)
	dom.SetAttribute(span, AttrProcessed, "1")
	span.AppendChild(dom.CreateTextNode(render(a.format, value, code, rate)))
	return span
}

// render is the display text of a conversion element.
func render(f *price.Formatter, value decimal.Decimal, code string, rate float64) string {
	return "(" + f.Format(price.Convert(value, rate), code) + ")"
}
