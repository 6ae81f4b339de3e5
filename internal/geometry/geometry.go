// Package geometry converts a section's plan area and rise into true surface
// area and a pitch tier.
package geometry

import (
	"math"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// Result is the geometry of one section.
type Result struct {
	PlanAreaSqFt    float64        `json:"planAreaSqFt"`
	SlopeMultiplier float64        `json:"slopeMultiplier"`
	SurfaceAreaSqFt float64        `json:"surfaceAreaSqFt"`
	PitchTier       roof.PitchTier `json:"pitchTier,omitempty"`
}

// SlopeMultiplier is the ratio of sloped surface to plan area for a rise per 12.
func SlopeMultiplier(risePer12 float64) float64 {
	r := risePer12 / 12
	return math.Sqrt(1 + r*r)
}

// SurfaceArea returns the true surface area of a plane with the given plan
// area and rise per 12.
func SurfaceArea(planAreaSqFt, risePer12 float64) (float64, error) {
	if err := validate(planAreaSqFt, risePer12); err != nil {
		return 0, err
	}
	return planAreaSqFt * SlopeMultiplier(risePer12), nil
}

// Tier buckets a rise: up to 4 is LOW, up to 7 is MEDIUM, above that STEEP.
func Tier(risePer12 float64) (roof.PitchTier, error) {
	if risePer12 < 0 || math.IsNaN(risePer12) {
		return roof.PitchNone, apperr.Validation("rise per 12 must be non-negative, got %v", risePer12)
	}
	switch {
	case risePer12 <= 4:
		return roof.PitchLow, nil
	case risePer12 <= 7:
		return roof.PitchMedium, nil
	default:
		return roof.PitchSteep, nil
	}
}

// ForSection computes the geometry of s. Flat sections keep their plan area
// and have no pitch tier.
func ForSection(s roof.Section) (Result, error) {
	if s.Kind == roof.Flat {
		if err := validate(s.PlanAreaSqFt, 0); err != nil {
			return Result{}, err
		}
		return Result{PlanAreaSqFt: s.PlanAreaSqFt, SlopeMultiplier: 1, SurfaceAreaSqFt: s.PlanAreaSqFt}, nil
	}

	rise := s.Rise()
	area, err := SurfaceArea(s.PlanAreaSqFt, rise)
	if err != nil {
		return Result{}, err
	}
	tier, err := Tier(rise)
	if err != nil {
		return Result{}, err
	}
	return Result{
		PlanAreaSqFt:    s.PlanAreaSqFt,
		SlopeMultiplier: SlopeMultiplier(rise),
		SurfaceAreaSqFt: area,
		PitchTier:       tier,
	}, nil
}

func validate(planAreaSqFt, risePer12 float64) error {
	if !(planAreaSqFt > 0) || math.IsInf(planAreaSqFt, 0) {
		return apperr.Validation("plan area must be positive, got %v", planAreaSqFt)
	}
	if !(risePer12 >= 0) || math.IsInf(risePer12, 0) {
		return apperr.Validation("rise per 12 must be non-negative, got %v", risePer12)
	}
	return nil
}
