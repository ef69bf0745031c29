package annotate

import (
	"github.com/japaniel/cnyconv/pkg/price"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Scanner walks a subtree and hands eligible text nodes to the Annotator.
type Scanner struct {
	annotator *Annotator
	log       zerolog.Logger
}

// NewScanner creates a scanner driving a.
func NewScanner(a *Annotator, log zerolog.Logger) *Scanner {
	return &Scanner{annotator: a, log: log.With().Str("component", "scanner").Logger()}
}

// Candidates returns, in document order, the text nodes under root that contain
// the currency symbol and are neither under a processed parent nor inside
// non-content or generated elements. The slice is a snapshot taken before any
// mutation, so a parent marked during the scan does not hide its later text.
func Candidates(root *html.Node) []*html.Node {
	if root == nil || skippable(root) {
		return nil
	}
	var nodes []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if price.ContainsSymbol(n.Data) && !IsProcessed(parentElement(n)) {
				nodes = append(nodes, n)
			}
			return
		case html.ElementNode:
			if nonContent.Match(n) || IsConversion(n) || IsPrice(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return nodes
}

// Scan annotates every candidate under root and returns the number of
// conversion elements created. A failing node is logged and skipped.
func (s *Scanner) Scan(root *html.Node) int {
	created := 0
	for _, n := range Candidates(root) {
		c, err := s.annotator.Annotate(n)
		if err != nil {
			s.log.Debug().Err(err).Msg("Skipping text node")
			continue
		}
		created += c
	}
	if created > 0 {
		s.log.Debug().Int("conversions", created).Msg("Scan complete")
	}
	return created
}
