// Package roof holds the domain types shared by the measurement, pricing and
// quoting stages.
package roof

import (
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
)

// SectionKind distinguishes pitched roof planes from low-slope ones.
type SectionKind string

const (
	Sloped SectionKind = "SLOPED"
	Flat   SectionKind = "FLAT"
)

// Family groups system types by the kind of section they can be installed on.
type Family string

const (
	FamilyPitched Family = "pitched"
	FamilyFlat    Family = "flat"
)

// SystemType is the roofing material family selected for a section.
type SystemType string

const (
	Shingle         SystemType = "SHINGLE"
	Tile            SystemType = "TILE"
	Metal           SystemType = "METAL"
	TPO             SystemType = "TPO"
	ModifiedBitumen SystemType = "MODIFIED_BITUMEN"
)

var systemFamilies = map[SystemType]Family{
	Shingle:         FamilyPitched,
	Tile:            FamilyPitched,
	Metal:           FamilyPitched,
	TPO:             FamilyFlat,
	ModifiedBitumen: FamilyFlat,
}

// Family returns the family of s and whether s is a known system type.
func (s SystemType) Family() (Family, bool) {
	f, ok := systemFamilies[s]
	return f, ok
}

// Family returns the system family a section of this kind accepts.
func (k SectionKind) Family() Family {
	if k == Flat {
		return FamilyFlat
	}
	return FamilyPitched
}

// DefaultSystem is the system type assigned to freshly measured sections.
func (k SectionKind) DefaultSystem() SystemType {
	if k == Flat {
		return TPO
	}
	return Shingle
}

// PitchTier buckets a section's rise. Flat sections have no tier.
type PitchTier string

const (
	PitchNone   PitchTier = ""
	PitchLow    PitchTier = "LOW"
	PitchMedium PitchTier = "MEDIUM"
	PitchSteep  PitchTier = "STEEP"
)

// StoryTier buckets building height: 1, 2 or 3+ stories.
type StoryTier int

const (
	OneStory  StoryTier = 1
	TwoStory  StoryTier = 2
	ThreePlus StoryTier = 3
)

// MaxTearOffLayers is the most existing layers a quote may remove.
const MaxTearOffLayers = 2

// StoryTierFor returns the tier of a building with the given story count.
func StoryTierFor(stories int) StoryTier {
	switch {
	case stories <= 1:
		return OneStory
	case stories == 2:
		return TwoStory
	default:
		return ThreePlus
	}
}

// Complexity counts the features that drive cutting waste on a section.
type Complexity struct {
	Facets       int `json:"facets"`
	HipsValleys  int `json:"hipsValleys"`
	Penetrations int `json:"penetrations"`
}

// Validate rejects negative counts.
func (c Complexity) Validate() error {
	if c.Facets < 0 || c.HipsValleys < 0 || c.Penetrations < 0 {
		return apperr.Validation("complexity counts must be non-negative (facets=%d hipsValleys=%d penetrations=%d)",
			c.Facets, c.HipsValleys, c.Penetrations)
	}
	return nil
}

// Section is one physically distinct portion of a roof as produced by a
// measurement. RisePer12 is nil for flat sections.
type Section struct {
	ID           string      `json:"id"`
	Kind         SectionKind `json:"kind"`
	PlanAreaSqFt float64     `json:"planAreaSqFt"`
	RisePer12    *float64    `json:"risePer12,omitempty"`
	Complexity   Complexity  `json:"complexity"`
	SystemType   SystemType  `json:"systemType"`
}

// Validate checks the structural invariants of a section, including the
// family rule: flat sections only take flat systems and sloped sections only
// take pitched systems.
func (s Section) Validate() error {
	switch s.Kind {
	case Sloped:
		if s.RisePer12 == nil {
			return apperr.Validation("section %q: sloped section requires risePer12", s.ID)
		}
	case Flat:
		if s.RisePer12 != nil {
			return apperr.Validation("section %q: flat section must not carry risePer12", s.ID)
		}
	default:
		return apperr.Validation("section %q: unknown kind %q", s.ID, s.Kind)
	}
	if s.PlanAreaSqFt <= 0 {
		return apperr.Validation("section %q: plan area must be positive, got %v", s.ID, s.PlanAreaSqFt)
	}
	if err := s.Complexity.Validate(); err != nil {
		return err
	}
	family, ok := s.SystemType.Family()
	if !ok {
		return apperr.Validation("section %q: unknown system type %q", s.ID, s.SystemType)
	}
	if family != s.Kind.Family() {
		return apperr.Validation("section %q: %s section cannot be priced as %s (%s family)",
			s.ID, s.Kind, s.SystemType, family).With("section", s.ID)
	}
	return nil
}

// Rise returns the section's rise per 12, or 0 for flat sections.
func (s Section) Rise() float64 {
	if s.RisePer12 == nil {
		return 0
	}
	return *s.RisePer12
}

// Quality rates how much a measurement can be trusted.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Method records which adapter produced a measurement.
type Method string

const (
	MethodThirdParty Method = "thirdParty"
	MethodManual     Method = "manual"
	MethodHeuristic  Method = "heuristic"
)

// Imagery attributes the imagery a measurement was derived from.
type Imagery struct {
	Provider   string `json:"provider,omitempty"`
	CapturedAt string `json:"capturedAt,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// Measurement is the immutable output of one measurement request.
type Measurement struct {
	RequestID string            `json:"requestId"`
	Quality   Quality           `json:"quality"`
	Method    Method            `json:"method"`
	Sections  []Section         `json:"sections"`
	Imagery   Imagery           `json:"imagery"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TotalPlanArea sums the plan area of all sections.
func (m Measurement) TotalPlanArea() float64 {
	total := 0.0
	for _, s := range m.Sections {
		total += s.PlanAreaSqFt
	}
	return total
}

// Float returns a pointer to v, for optional fields such as RisePer12.
func Float(v float64) *float64 {
	return &v
}
