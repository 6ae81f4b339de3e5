// Package finance selects eligible financing plans for a loan amount and
// computes amortized monthly payment ranges.
package finance

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/logging"
)

// ErrNoFinancing is the cause of the error returned when no active plan
// accepts a loan amount.
var ErrNoFinancing = errors.New("no financing available")

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// powPrecision bounds intermediate digits while compounding.
const powPrecision = 24

// Plan is a lender program. APRs and the dealer fee are annual percentages
// (9.99 means 9.99%).
type Plan struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	APRMin           decimal.Decimal  `json:"aprMin"`
	APRMax           decimal.Decimal  `json:"aprMax"`
	TermMinMonths    int              `json:"termMinMonths"`
	TermMaxMonths    int              `json:"termMaxMonths"`
	DealerFeePercent decimal.Decimal  `json:"dealerFeePercent"`
	MinAmount        *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount        *decimal.Decimal `json:"maxAmount,omitempty"`
	Active           bool             `json:"active"`
}

// Validate checks the plan's ranges.
func (p Plan) Validate() error {
	if p.Name == "" {
		return apperr.Validation("finance plan: name is required")
	}
	if p.APRMin.IsNegative() || p.APRMax.LessThan(p.APRMin) {
		return apperr.Validation("finance plan %q: need 0 <= aprMin (%s) <= aprMax (%s)", p.Name, p.APRMin, p.APRMax)
	}
	if p.TermMinMonths < 1 || p.TermMaxMonths < p.TermMinMonths {
		return apperr.Validation("finance plan %q: need 1 <= termMin (%d) <= termMax (%d)", p.Name, p.TermMinMonths, p.TermMaxMonths)
	}
	if p.DealerFeePercent.IsNegative() {
		return apperr.Validation("finance plan %q: negative dealer fee", p.Name)
	}
	if p.MinAmount != nil && p.MaxAmount != nil && p.MaxAmount.LessThan(*p.MinAmount) {
		return apperr.Validation("finance plan %q: amount window is empty", p.Name)
	}
	return nil
}

// Accepts reports whether the plan is active and amount lies inside its
// inclusive amount window.
func (p Plan) Accepts(amount decimal.Decimal) bool {
	if !p.Active {
		return false
	}
	if p.MinAmount != nil && amount.LessThan(*p.MinAmount) {
		return false
	}
	if p.MaxAmount != nil && amount.GreaterThan(*p.MaxAmount) {
		return false
	}
	return true
}

// Principal returns amount inflated by the plan's dealer fee.
func (p Plan) Principal(amount decimal.Decimal) decimal.Decimal {
	if p.DealerFeePercent.IsZero() {
		return amount
	}
	return amount.Mul(one.Add(p.DealerFeePercent.Div(hundred))).Round(2)
}

// MonthlyPayment is the standard amortized payment for principal at an annual
// percentage rate over months, rounded to the cent. A zero rate is principal/months.
func MonthlyPayment(principal, aprPercent decimal.Decimal, months int) (decimal.Decimal, error) {
	if months < 1 {
		return decimal.Zero, apperr.Validation("term must be at least one month, got %d", months)
	}
	if aprPercent.IsNegative() {
		return decimal.Zero, apperr.Validation("apr must not be negative, got %s", aprPercent)
	}
	n := decimal.NewFromInt(int64(months))
	if aprPercent.IsZero() {
		return principal.Div(n).Round(2), nil
	}

	r := aprPercent.Div(hundred).Div(twelve)
	growth := powInt(one.Add(r), months)
	payment := principal.Mul(r).Mul(growth).Div(growth.Sub(one))
	return payment.Round(2), nil
}

// powInt raises base to a non-negative integer power by squaring.
func powInt(base decimal.Decimal, exp int) decimal.Decimal {
	result := one
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(powPrecision)
		}
		base = base.Mul(base).Round(powPrecision)
		exp >>= 1
	}
	return result
}

// Range is an inclusive monthly payment range.
type Range struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Option is one eligible plan priced for a loan amount. Min uses the lowest
// APR over the longest term; Max uses the highest APR over the shortest.
type Option struct {
	PlanID    string          `json:"planId"`
	PlanName  string          `json:"planName"`
	Principal decimal.Decimal `json:"principal"`
	APRMin    decimal.Decimal `json:"aprMin"`
	APRMax    decimal.Decimal `json:"aprMax"`
	TermMin   int             `json:"termMinMonths"`
	TermMax   int             `json:"termMaxMonths"`
	Payment   Range           `json:"monthlyPayment"`
}

// Result lists the options for one loan amount and their overall range.
type Result struct {
	LoanAmount decimal.Decimal `json:"loanAmount"`
	Options    []Option        `json:"options"`
	Overall    Range           `json:"overallRange"`
}

// Options prices every plan that accepts amount. It fails with a
// configuration error wrapping ErrNoFinancing when none does.
func Options(amount decimal.Decimal, plans []Plan) (Result, error) {
	if !amount.IsPositive() {
		return Result{}, apperr.Validation("loan amount must be positive, got %s", amount)
	}

	res := Result{LoanAmount: amount}
	for _, p := range plans {
		if !p.Accepts(amount) {
			continue
		}
		if err := p.Validate(); err != nil {
			return Result{}, apperr.Configuration(err, "finance plan %q", p.Name)
		}
		principal := p.Principal(amount)
		low, err := MonthlyPayment(principal, p.APRMin, p.TermMaxMonths)
		if err != nil {
			return Result{}, err
		}
		high, err := MonthlyPayment(principal, p.APRMax, p.TermMinMonths)
		if err != nil {
			return Result{}, err
		}
		opt := Option{
			PlanID:    p.ID,
			PlanName:  p.Name,
			Principal: principal,
			APRMin:    p.APRMin,
			APRMax:    p.APRMax,
			TermMin:   p.TermMinMonths,
			TermMax:   p.TermMaxMonths,
			Payment:   Range{Min: low, Max: high},
		}
		if len(res.Options) == 0 {
			res.Overall = opt.Payment
		} else {
			res.Overall.Min = decimal.Min(res.Overall.Min, low)
			res.Overall.Max = decimal.Max(res.Overall.Max, high)
		}
		res.Options = append(res.Options, opt)
	}

	if len(res.Options) == 0 {
		return Result{}, apperr.Configuration(ErrNoFinancing, "no plan accepts %s", amount.StringFixed(2)).
			With("amount", amount.StringFixed(2))
	}
	return res, nil
}

// Source lists the currently active plans.
type Source interface {
	ListActiveFinancePlans(ctx context.Context) ([]Plan, error)
}

// Calculator computes financing options from the plans in a Source.
type Calculator struct {
	source Source
	logger *zap.Logger
}

func NewCalculator(source Source, logger *zap.Logger) *Calculator {
	return &Calculator{source: source, logger: logging.OrNop(logger)}
}

// CalculateOptions lists the active plans and prices those accepting amount.
func (c *Calculator) CalculateOptions(ctx context.Context, amount decimal.Decimal) (Result, error) {
	plans, err := c.source.ListActiveFinancePlans(ctx)
	if err != nil {
		return Result{}, apperr.Configuration(err, "list finance plans")
	}
	res, err := Options(amount, plans)
	if errors.Is(err, ErrNoFinancing) {
		c.logger.Info("no financing available",
			zap.String("amount", amount.StringFixed(2)),
			zap.Int("activePlans", len(plans)))
	}
	return res, err
}
