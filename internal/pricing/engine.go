// Package pricing resolves county rate cards and composes per-section prices
// with a line-item breakdown.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

const defaultConcurrency = 8

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// LineKind classifies a breakdown line.
type LineKind string

const (
	LineBase       LineKind = "base"
	LineMultiplier LineKind = "multiplier"
	LineAdder      LineKind = "adder"
)

// Line is one row of a customer-facing breakdown. Amount is the dollar delta
// the row introduced.
type Line struct {
	Kind   LineKind         `json:"kind"`
	Label  string           `json:"label"`
	Factor *decimal.Decimal `json:"factor,omitempty"`
	Amount decimal.Decimal  `json:"amount"`
}

// Adjustment records one multiplier step.
type Adjustment struct {
	Name   string          `json:"name"`
	Factor decimal.Decimal `json:"factor"`
	Delta  decimal.Decimal `json:"delta"`
}

// AppliedAdder is a fixed adder resolved to dollars.
type AppliedAdder struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// SectionInput is a section ready for pricing: its final (post-waste)
// squares and pricing context.
type SectionInput struct {
	SectionID    string          `json:"sectionId"`
	FinalSquares decimal.Decimal `json:"finalSquares"`
	Context      Context         `json:"context"`
}

// SectionPrice is the priced result of one section.
type SectionPrice struct {
	SectionID           string          `json:"sectionId"`
	Key                 Key             `json:"key"`
	MatchedCounty       string          `json:"matchedCounty"`
	CountyFallback      bool            `json:"countyFallback,omitempty"`
	PricePerSquare      decimal.Decimal `json:"pricePerSquare"`
	FinalSquares        decimal.Decimal `json:"finalSquares"`
	TotalSquarePrice    decimal.Decimal `json:"totalSquarePrice"`
	Multipliers         []Adjustment    `json:"multipliers"`
	AdjustedSquarePrice decimal.Decimal `json:"adjustedSquarePrice"`
	FixedAdders         []AppliedAdder  `json:"fixedAdders"`
	TotalPrice          decimal.Decimal `json:"totalPrice"`
	Breakdown           []Line          `json:"breakdown"`
}

// Totals are the quote-level roll-ups.
type Totals struct {
	SquarePrice decimal.Decimal `json:"squarePrice"`
	Adjustments decimal.Decimal `json:"adjustments"`
	FixedAdders decimal.Decimal `json:"fixedAdders"`
	Total       decimal.Decimal `json:"total"`
}

// QuotePrice keeps every section's breakdown next to the totals.
type QuotePrice struct {
	Sections []SectionPrice `json:"sections"`
	Totals   Totals         `json:"totals"`
}

// Engine prices sections against a rate card. It is safe for concurrent use.
type Engine struct {
	rates       *cachedSource
	logger      *zap.Logger
	concurrency int
}

// NewEngine creates an engine that reads rate-card entries from source.
func NewEngine(source Source, logger *zap.Logger) *Engine {
	return &Engine{
		rates:       newCachedSource(source),
		logger:      logging.OrNop(logger),
		concurrency: defaultConcurrency,
	}
}

// Invalidate drops every cached rate-card entry. Call it after a rate-card write.
func (e *Engine) Invalidate() {
	e.rates.invalidate()
}

// Resolve returns the rate-card entry for key, falling back to the DEFAULT
// county. A key with neither row is a NotFound error.
func (e *Engine) Resolve(ctx context.Context, key Key) (Entry, bool, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, false, err
	}
	return e.rates.resolve(ctx, key)
}

// PriceSection validates in, resolves its rate-card entry and composes the price.
func (e *Engine) PriceSection(ctx context.Context, in SectionInput) (SectionPrice, error) {
	if err := in.Context.Validate(); err != nil {
		return SectionPrice{}, err
	}
	if !in.FinalSquares.IsPositive() {
		return SectionPrice{}, apperr.Validation("section %q: final squares must be positive, got %s", in.SectionID, in.FinalSquares)
	}

	key := in.Context.Key()
	entry, fallback, err := e.Resolve(ctx, key)
	if err != nil {
		return SectionPrice{}, err
	}
	if fallback {
		e.logger.Debug("rate card county fallback",
			zap.String("section", in.SectionID),
			zap.String("county", key.County),
			zap.String("key", key.String()))
	}

	price := Compose(entry, in)
	price.Key = key
	price.CountyFallback = fallback
	return price, nil
}

// PriceQuote prices every section concurrently and sums the totals. Any
// section failure fails the whole quote.
func (e *Engine) PriceQuote(ctx context.Context, sections []SectionInput) (QuotePrice, error) {
	if len(sections) == 0 {
		return QuotePrice{}, apperr.Validation("quote has no sections")
	}

	prices := make([]SectionPrice, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, in := range sections {
		g.Go(func() error {
			p, err := e.PriceSection(gctx, in)
			if err != nil {
				return fmt.Errorf("price section %q: %w", in.SectionID, err)
			}
			prices[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return QuotePrice{}, err
	}

	return QuotePrice{Sections: prices, Totals: Sum(prices)}, nil
}

// Sum rolls section prices up into quote totals.
func Sum(prices []SectionPrice) Totals {
	var t Totals
	for _, p := range prices {
		t.SquarePrice = t.SquarePrice.Add(p.TotalSquarePrice)
		t.Adjustments = t.Adjustments.Add(p.AdjustedSquarePrice.Sub(p.TotalSquarePrice))
		for _, a := range p.FixedAdders {
			t.FixedAdders = t.FixedAdders.Add(a.Amount)
		}
		t.Total = t.Total.Add(p.TotalPrice)
	}
	return t
}

// Compose applies entry to in. Multipliers run in a fixed order (pitch,
// stories, tear-off, HVHZ); each step is rounded to the cent so that the
// breakdown deltas add up exactly to the adjusted price.
func Compose(entry Entry, in SectionInput) SectionPrice {
	c := in.Context
	m := entry.Multipliers
	pps := entry.PricePerSquare()
	squares := in.FinalSquares

	p := SectionPrice{
		SectionID:      in.SectionID,
		Key:            c.Key(),
		MatchedCounty:  entry.Key.County,
		PricePerSquare: pps,
		FinalSquares:   squares,
	}
	running := pps.Mul(squares).Round(2)
	p.TotalSquarePrice = running
	p.Breakdown = append(p.Breakdown, Line{
		Kind:   LineBase,
		Label:  fmt.Sprintf("%s squares @ $%s", squares.StringFixed(2), pps.StringFixed(2)),
		Amount: running,
	})

	apply := func(name string, factor decimal.Decimal) {
		next := running.Mul(factor).Round(2)
		delta := next.Sub(running)
		f := factor
		p.Multipliers = append(p.Multipliers, Adjustment{Name: name, Factor: factor, Delta: delta})
		p.Breakdown = append(p.Breakdown, Line{Kind: LineMultiplier, Label: name, Factor: &f, Amount: delta})
		running = next
	}

	if c.Kind == roof.Sloped {
		apply(fmt.Sprintf("Pitch (%s)", c.PitchTier), orOne(m.Pitch[c.PitchTier]))
	}
	if c.StoryCount > 1 {
		factor := orOne(m.PerExtraStory).Pow(decimal.NewFromInt(int64(c.StoryCount - 1))).Round(8)
		apply(fmt.Sprintf("Stories (%d)", c.StoryCount), factor)
	}
	if c.TearOffLayers > 0 {
		factor := one.Add(m.TearOffPerLayer.Mul(decimal.NewFromInt(int64(c.TearOffLayers))))
		apply(fmt.Sprintf("Tear-off (%d layer)", c.TearOffLayers), factor)
	}
	if c.HVHZ {
		apply("HVHZ", orOne(m.HVHZ))
	}
	p.AdjustedSquarePrice = running

	total := running
	for _, a := range entry.FixedAdders {
		amount := a.Amount.Round(2)
		label := a.Name
		if a.PercentOfJob.IsPositive() {
			amount = p.AdjustedSquarePrice.Mul(a.PercentOfJob).Div(hundred).Round(2)
			label = fmt.Sprintf("%s (%s%%)", a.Name, a.PercentOfJob.String())
		}
		p.FixedAdders = append(p.FixedAdders, AppliedAdder{Name: a.Name, Amount: amount})
		p.Breakdown = append(p.Breakdown, Line{Kind: LineAdder, Label: label, Amount: amount})
		total = total.Add(amount)
	}
	p.TotalPrice = total
	return p
}

func orOne(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return one
	}
	return d
}
