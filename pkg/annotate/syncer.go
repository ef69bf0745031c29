package annotate

import (
	"github.com/go-shiori/dom"
	"github.com/japaniel/cnyconv/pkg/page"
	"github.com/japaniel/cnyconv/pkg/price"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Syncer re-renders existing conversion elements after a rate refresh or a
// currency change. It never scans text.
type Syncer struct {
	doc      *page.Document
	rates    RateSource
	currency CurrencySource
	format   *price.Formatter
	log      zerolog.Logger
}

// NewSyncer creates a syncer for doc.
func NewSyncer(doc *page.Document, rates RateSource, currency CurrencySource, format *price.Formatter, log zerolog.Logger) *Syncer {
	return &Syncer{
		doc:      doc,
		rates:    rates,
		currency: currency,
		format:   format,
		log:      log.With().Str("component", "syncer").Logger(),
	}
}

// Sync updates every conversion element in the document and returns how many
// were re-rendered. Without a rate for the selected currency nothing changes.
func (s *Syncer) Sync() int {
	code := s.currency.Current()
	rate, ok := s.rates.Get(code)
	if !ok {
		s.log.Debug().Str("currency", code).Msg("No rate, leaving conversions as they are")
		return 0
	}

	updated := 0
	for _, el := range ConversionElements(s.doc.Root()) {
		v, err := decimal.NewFromString(dom.GetAttribute(el, AttrOriginal))
		if err != nil {
			s.log.Debug().Err(err).Msg("Conversion element without a usable original amount")
			continue
		}
		text := render(s.format, v, code, rate)
		if dom.TextContent(el) != text {
			s.doc.SetTextContent(el, text)
		}
		s.doc.SetAttribute(el, AttrCurrency, code)
		updated++
	}
	s.log.Debug().Int("updated", updated).Str("currency", code).Msg("Conversions synced")
	return updated
}
