// Package quote orchestrates a roof quote: measurement, then per section
// geometry, waste and pricing, then financing over the quote total.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/geometry"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/measurement"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

type Measurer interface {
	Resolve(ctx context.Context, req measurement.Request) (roof.Measurement, error)
}

type WasteEvaluator interface {
	Evaluate(ctx context.Context, areaSqFt float64, complexity roof.Complexity) (waste.Result, error)
}

type PriceEngine interface {
	PriceSection(ctx context.Context, in pricing.SectionInput) (pricing.SectionPrice, error)
	PriceQuote(ctx context.Context, sections []pricing.SectionInput) (pricing.QuotePrice, error)
}

type FinanceCalculator interface {
	CalculateOptions(ctx context.Context, amount decimal.Decimal) (finance.Result, error)
}

// Pipeline is safe for concurrent use when its collaborators are.
type Pipeline struct {
	measurer Measurer
	waste    WasteEvaluator
	pricing  PriceEngine
	finance  FinanceCalculator
	logger   *zap.Logger
}

func NewPipeline(m Measurer, w WasteEvaluator, p PriceEngine, f FinanceCalculator, logger *zap.Logger) *Pipeline {
	return &Pipeline{measurer: m, waste: w, pricing: p, finance: f, logger: logging.OrNop(logger)}
}

// JobInput is the caller-supplied, not yet defaulted, job description.
type JobInput struct {
	County        string `json:"county"`
	StoryCount    int    `json:"storyCount"`
	TearOffLayers int    `json:"tearOffLayers"`
	HVHZ          *bool  `json:"hvhz,omitempty"`
}

// Job resolves the input's defaults.
func (in JobInput) Job() (pricing.Job, error) {
	return pricing.NewJob(in.County, in.StoryCount, in.TearOffLayers, in.HVHZ)
}

// SectionResult carries every stage's output for one section.
type SectionResult struct {
	Section  roof.Section         `json:"section"`
	Geometry geometry.Result      `json:"geometry"`
	Waste    waste.Result         `json:"waste"`
	Price    pricing.SectionPrice `json:"price"`
}

// Result is a fully priced quote.
type Result struct {
	Job                pricing.Job     `json:"job"`
	Sections           []SectionResult `json:"sections"`
	Totals             pricing.Totals  `json:"totals"`
	Total              decimal.Decimal `json:"total"`
	FinancingAvailable bool            `json:"financingAvailable"`
	Financing          *finance.Result `json:"financing,omitempty"`
	MonthlyPayment     *finance.Range  `json:"monthlyPayment,omitempty"`
	// DegradedWaste is set when any section was evaluated with the built-in
	// waste rules.
	DegradedWaste bool `json:"degradedWaste,omitempty"`
}

// ResolveMeasurement measures the property at lat/lng.
func (p *Pipeline) ResolveMeasurement(ctx context.Context, lat, lng float64, placeID string) (roof.Measurement, error) {
	return p.measurer.Resolve(ctx, measurement.Request{Lat: lat, Lng: lng, PlaceID: placeID})
}

// prepare runs geometry and waste for s and builds its pricing input.
func (p *Pipeline) prepare(ctx context.Context, s roof.Section, job pricing.Job) (SectionResult, pricing.SectionInput, error) {
	if s.SystemType == "" {
		s.SystemType = s.Kind.DefaultSystem()
	}
	if err := s.Validate(); err != nil {
		return SectionResult{}, pricing.SectionInput{}, err
	}
	geo, err := geometry.ForSection(s)
	if err != nil {
		return SectionResult{}, pricing.SectionInput{}, err
	}
	w, err := p.waste.Evaluate(ctx, geo.SurfaceAreaSqFt, s.Complexity)
	if err != nil {
		return SectionResult{}, pricing.SectionInput{}, err
	}
	in := pricing.SectionInput{
		SectionID:    s.ID,
		FinalSquares: decimal.NewFromFloat(w.FinalSquares).Round(2),
		Context:      job.ForSection(s.Kind, s.SystemType, geo.PitchTier),
	}
	return SectionResult{Section: s, Geometry: geo, Waste: w}, in, nil
}

// PriceSection runs geometry, waste and pricing for one section.
func (p *Pipeline) PriceSection(ctx context.Context, s roof.Section, job pricing.Job) (SectionResult, error) {
	res, in, err := p.prepare(ctx, s, job)
	if err != nil {
		return SectionResult{}, err
	}
	res.Price, err = p.pricing.PriceSection(ctx, in)
	if err != nil {
		return SectionResult{}, err
	}
	return res, nil
}

// PriceQuote prices every section and then finances the total. Any section
// failure fails the quote. A total no plan accepts is reported through
// FinancingAvailable rather than as an error.
func (p *Pipeline) PriceQuote(ctx context.Context, sections []roof.Section, job pricing.Job) (Result, error) {
	if len(sections) == 0 {
		return Result{}, apperr.Validation("quote has no sections")
	}

	res := Result{Job: job, Sections: make([]SectionResult, len(sections))}
	inputs := make([]pricing.SectionInput, len(sections))
	seen := make(map[string]bool, len(sections))
	for i, s := range sections {
		if s.ID == "" {
			s.ID = fmt.Sprintf("section-%d", i+1)
		}
		if seen[s.ID] {
			return Result{}, apperr.Validation("duplicate section id %q", s.ID)
		}
		seen[s.ID] = true

		sr, in, err := p.prepare(ctx, s, job)
		if err != nil {
			return Result{}, fmt.Errorf("section %q: %w", s.ID, err)
		}
		res.Sections[i] = sr
		inputs[i] = in
		res.DegradedWaste = res.DegradedWaste || sr.Waste.Degraded
	}

	priced, err := p.pricing.PriceQuote(ctx, inputs)
	if err != nil {
		return Result{}, err
	}
	for i := range res.Sections {
		res.Sections[i].Price = priced.Sections[i]
	}
	res.Totals = priced.Totals
	res.Total = priced.Totals.Total

	fin, err := p.finance.CalculateOptions(ctx, res.Total)
	switch {
	case errors.Is(err, finance.ErrNoFinancing):
		res.FinancingAvailable = false
	case err != nil:
		return Result{}, err
	default:
		res.FinancingAvailable = true
		res.Financing = &fin
		res.MonthlyPayment = &fin.Overall
	}

	p.logger.Info("quote priced",
		zap.String("county", job.County),
		zap.Int("sections", len(res.Sections)),
		zap.String("total", res.Total.StringFixed(2)),
		zap.Bool("financing", res.FinancingAvailable),
		zap.Bool("degradedWaste", res.DegradedWaste))
	return res, nil
}

// CalculateFinancing lists the financing options for amount.
func (p *Pipeline) CalculateFinancing(ctx context.Context, amount decimal.Decimal) (finance.Result, error) {
	return p.finance.CalculateOptions(ctx, amount)
}
