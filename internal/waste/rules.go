// Package waste computes how much extra material a roof section needs for
// cutting and complexity losses.
package waste

import (
	"fmt"
	"math"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// Tier maps an inclusive count range to an additive waste percentage.
// A nil Max leaves the range open-ended.
type Tier struct {
	Min     int     `json:"min" yaml:"min"`
	Max     *int    `json:"max,omitempty" yaml:"max,omitempty"`
	Percent float64 `json:"percent" yaml:"percent"`
}

func (t Tier) contains(v int) bool {
	return v >= t.Min && (t.Max == nil || v <= *t.Max)
}

func (t Tier) String() string {
	if t.Max == nil {
		return fmt.Sprintf("[%d+]", t.Min)
	}
	return fmt.Sprintf("[%d-%d]", t.Min, *t.Max)
}

// Config is an administrator-owned waste rule set.
type Config struct {
	BasePercent  float64 `json:"basePercent" yaml:"base_percent"`
	MaxPercent   float64 `json:"maxPercent" yaml:"max_percent"`
	Facets       []Tier  `json:"facets" yaml:"facets"`
	HipsValleys  []Tier  `json:"hipsValleys" yaml:"hips_valleys"`
	Penetrations []Tier  `json:"penetrations" yaml:"penetrations"`
}

// Validate rejects configurations that could produce a negative or
// ambiguous waste percentage.
func (c Config) Validate() error {
	if c.BasePercent < 0 || c.MaxPercent < c.BasePercent {
		return apperr.Validation("waste rules: need 0 <= base (%v) <= max (%v)", c.BasePercent, c.MaxPercent)
	}
	tables := []struct {
		name  string
		tiers []Tier
	}{{"facets", c.Facets}, {"hipsValleys", c.HipsValleys}, {"penetrations", c.Penetrations}}
	for _, table := range tables {
		if err := validateTiers(table.tiers); err != nil {
			return apperr.Validation("waste rules: %s: %v", table.name, err)
		}
	}
	return nil
}

func validateTiers(tiers []Tier) error {
	for i, t := range tiers {
		if t.Min < 0 {
			return fmt.Errorf("tier %s has a negative lower bound", t)
		}
		if t.Max != nil && *t.Max < t.Min {
			return fmt.Errorf("tier %s is empty", t)
		}
		if t.Percent < 0 || math.IsNaN(t.Percent) {
			return fmt.Errorf("tier %s has a negative adder", t)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.Max == nil || *prev.Max >= t.Min {
			return fmt.Errorf("tier %s overlaps %s", t, prev)
		}
	}
	return nil
}

func bound(v int) *int { return &v }

// DefaultConfig is the built-in rule set used when the store cannot be read.
func DefaultConfig() Config {
	return Config{
		BasePercent: 12,
		MaxPercent:  22,
		Facets: []Tier{
			{Min: 0, Max: bound(6), Percent: 0},
			{Min: 7, Max: bound(12), Percent: 2},
			{Min: 13, Max: bound(20), Percent: 4},
			{Min: 21, Percent: 6},
		},
		HipsValleys: []Tier{
			{Min: 0, Max: bound(2), Percent: 0},
			{Min: 3, Max: bound(5), Percent: 1},
			{Min: 6, Max: bound(10), Percent: 2},
			{Min: 11, Percent: 3},
		},
		Penetrations: []Tier{
			{Min: 0, Max: bound(3), Percent: 0},
			{Min: 4, Max: bound(8), Percent: 1},
			{Min: 9, Percent: 2},
		},
	}
}

// ConfigSource records where the rules behind a result came from.
type ConfigSource string

const (
	SourceStore   ConfigSource = "store"
	SourceDefault ConfigSource = "builtin-default"
)

// Result is the waste evaluation of one section.
type Result struct {
	BasePercent       float64      `json:"basePercent"`
	FacetsAdder       float64      `json:"facetsAdder"`
	HipsValleysAdder  float64      `json:"hipsValleysAdder"`
	PenetrationsAdder float64      `json:"penetrationsAdder"`
	TotalWastePercent float64      `json:"totalWastePercent"`
	Capped            bool         `json:"capped,omitempty"`
	AreaSqFt          float64      `json:"areaSqFt"`
	FinalAreaSqFt     float64      `json:"finalAreaSqFt"`
	FinalSquares      float64      `json:"finalSquares"`
	ConfigSource      ConfigSource `json:"configSource"`
	// Degraded is set when the built-in rules stood in for the store's.
	Degraded bool `json:"degraded,omitempty"`
}

// lookup returns the adder of the first tier containing v, or 0.
func lookup(tiers []Tier, v int) float64 {
	for _, t := range tiers {
		if t.contains(v) {
			return t.Percent
		}
	}
	return 0
}

// Evaluate applies cfg to a section of areaSqFt surface area.
func Evaluate(areaSqFt float64, complexity roof.Complexity, cfg Config) (Result, error) {
	if !(areaSqFt > 0) || math.IsInf(areaSqFt, 0) {
		return Result{}, apperr.Validation("waste: area must be positive, got %v", areaSqFt)
	}
	if err := complexity.Validate(); err != nil {
		return Result{}, err
	}

	r := Result{
		BasePercent:       cfg.BasePercent,
		FacetsAdder:       lookup(cfg.Facets, complexity.Facets),
		HipsValleysAdder:  lookup(cfg.HipsValleys, complexity.HipsValleys),
		PenetrationsAdder: lookup(cfg.Penetrations, complexity.Penetrations),
		AreaSqFt:          areaSqFt,
	}

	total := r.BasePercent + r.FacetsAdder + r.HipsValleysAdder + r.PenetrationsAdder
	if total > cfg.MaxPercent {
		total = cfg.MaxPercent
		r.Capped = true
	}
	r.TotalWastePercent = total
	r.FinalAreaSqFt = areaSqFt * (1 + total/100)
	r.FinalSquares = r.FinalAreaSqFt / 100
	return r, nil
}
