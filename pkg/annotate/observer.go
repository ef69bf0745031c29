package annotate

import (
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/price"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Observer feeds nodes added to the document into the annotator. Text nodes
// go straight to the annotator, even under a processed element; the text the
// annotator writes itself sits inside marked elements and is skipped.
type Observer struct {
	annotator *Annotator
	scanner   *Scanner
	log       zerolog.Logger

	// Converted counts conversion elements created from mutations.
	Converted int
}

// NewObserver creates an observer using a and s.
func NewObserver(a *Annotator, s *Scanner, log zerolog.Logger) *Observer {
	return &Observer{annotator: a, scanner: s, log: log.With().Str("component", "observer").Logger()}
}

// Attach subscribes to doc's mutation records.
func (o *Observer) Attach(doc *page.Document) (detach func()) {
	return doc.Observe(o.Handle)
}

// Handle processes one batch of mutation records.
func (o *Observer) Handle(records []page.MutationRecord) {
	for _, r := range records {
		if r.Type != page.ChildList {
			continue
		}
		for _, n := range r.Added {
			o.handleNode(n)
		}
	}
}

func (o *Observer) handleNode(n *html.Node) {
	defer func() {
		if p := recover(); p != nil {
			o.log.Error().Interface("panic", p).Msg("Added node handling panicked")
		}
	}()
	// already removed again by a later mutation in the same batch
	if n.Parent == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		if !price.ContainsSymbol(n.Data) {
			return
		}
		c, err := o.annotator.Annotate(n)
		if err != nil {
			o.log.Debug().Err(err).Msg("Skipping added text node")
			return
		}
		o.Converted += c
	case html.ElementNode:
		o.Converted += o.scanner.Scan(n)
	}
}
