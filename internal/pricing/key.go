package pricing

import (
	"fmt"
	"strings"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// DefaultCounty is the rate-card county used when a county has no row of its own.
const DefaultCounty = "DEFAULT"

// MaxStoryCount is the tallest building the estimator prices.
const MaxStoryCount = 10

// hvhzCounties are the counties inside the High-Velocity Hurricane Zone.
var hvhzCounties = map[string]bool{
	"MIAMI-DADE": true,
	"BROWARD":    true,
}

// NormalizeCounty canonicalizes a county name for rate-card lookups.
func NormalizeCounty(county string) string {
	return strings.ToUpper(strings.TrimSpace(county))
}

// InHVHZ reports whether county lies in the High-Velocity Hurricane Zone.
func InHVHZ(county string) bool {
	return hvhzCounties[NormalizeCounty(county)]
}

// Key identifies one rate-card entry. It is comparable and used directly as a
// map key. PitchTier is roof.PitchNone for flat systems.
type Key struct {
	County        string          `json:"county"`
	SystemType    roof.SystemType `json:"systemType"`
	PitchTier     roof.PitchTier  `json:"pitchTier,omitempty"`
	StoryTier     roof.StoryTier  `json:"storyTier"`
	TearOffLayers int             `json:"tearOffLayers"`
	HVHZ          bool            `json:"hvhz"`
}

// WithCounty returns a copy of k for another county.
func (k Key) WithCounty(county string) Key {
	k.County = county
	return k
}

func (k Key) String() string {
	pitch := string(k.PitchTier)
	if pitch == "" {
		pitch = "-"
	}
	return fmt.Sprintf("%s/%s/%s/%d-story/%d-layer/hvhz=%t", k.County, k.SystemType, pitch, k.StoryTier, k.TearOffLayers, k.HVHZ)
}

// Validate checks that k names a queryable combination.
func (k Key) Validate() error {
	if k.County == "" {
		return apperr.Validation("rate card key: county is required")
	}
	family, ok := k.SystemType.Family()
	if !ok {
		return apperr.Validation("rate card key: unknown system type %q", k.SystemType)
	}
	if (family == roof.FamilyFlat) != (k.PitchTier == roof.PitchNone) {
		return apperr.Validation("rate card key: pitch tier %q does not apply to %s", k.PitchTier, k.SystemType)
	}
	if k.StoryTier < roof.OneStory || k.StoryTier > roof.ThreePlus {
		return apperr.Validation("rate card key: story tier %d out of range", k.StoryTier)
	}
	if k.TearOffLayers < 0 || k.TearOffLayers > roof.MaxTearOffLayers {
		return apperr.Validation("rate card key: tear-off layers %d out of range", k.TearOffLayers)
	}
	return nil
}

// Job holds the quote-wide inputs shared by every section.
type Job struct {
	County        string `json:"county"`
	StoryCount    int    `json:"storyCount"`
	TearOffLayers int    `json:"tearOffLayers"`
	HVHZ          bool   `json:"hvhz"`
}

// NewJob resolves job defaults once: a zero story count means one story and a
// nil hvhz is derived from the county.
func NewJob(county string, storyCount, tearOffLayers int, hvhz *bool) (Job, error) {
	j := Job{
		County:        NormalizeCounty(county),
		StoryCount:    storyCount,
		TearOffLayers: tearOffLayers,
	}
	if j.StoryCount == 0 {
		j.StoryCount = 1
	}
	if hvhz != nil {
		j.HVHZ = *hvhz
	} else {
		j.HVHZ = InHVHZ(j.County)
	}
	return j, j.Validate()
}

// Validate checks the job-level ranges.
func (j Job) Validate() error {
	if j.County == "" {
		return apperr.Validation("county is required")
	}
	if j.StoryCount < 1 {
		return apperr.Validation("story count must be at least 1, got %d", j.StoryCount)
	}
	if j.StoryCount > MaxStoryCount {
		return apperr.Validation("story count must be at most %d, got %d", MaxStoryCount, j.StoryCount)
	}
	if j.TearOffLayers < 0 || j.TearOffLayers > roof.MaxTearOffLayers {
		return apperr.Validation("tear-off layers must be between 0 and %d, got %d", roof.MaxTearOffLayers, j.TearOffLayers)
	}
	return nil
}

// Context is everything the engine needs to price one section.
type Context struct {
	Job
	Kind       roof.SectionKind `json:"kind"`
	SystemType roof.SystemType  `json:"systemType"`
	PitchTier  roof.PitchTier   `json:"pitchTier,omitempty"`
}

// ForSection builds the pricing context of a section of this job.
func (j Job) ForSection(kind roof.SectionKind, system roof.SystemType, pitch roof.PitchTier) Context {
	if kind == roof.Flat {
		pitch = roof.PitchNone
	}
	return Context{Job: j, Kind: kind, SystemType: system, PitchTier: pitch}
}

// Validate enforces the family rule and the job ranges.
func (c Context) Validate() error {
	if err := c.Job.Validate(); err != nil {
		return err
	}
	family, ok := c.SystemType.Family()
	if !ok {
		return apperr.Validation("unknown system type %q", c.SystemType)
	}
	if family != c.Kind.Family() {
		return apperr.Validation("%s section cannot be priced as %s (%s family)", c.Kind, c.SystemType, family)
	}
	if c.Kind == roof.Sloped {
		switch c.PitchTier {
		case roof.PitchLow, roof.PitchMedium, roof.PitchSteep:
		case roof.PitchNone:
			return apperr.Validation("sloped section requires a pitch tier")
		default:
			return apperr.Validation("unknown pitch tier %q", c.PitchTier)
		}
	}
	return nil
}

// Key returns the exact rate-card key for c.
func (c Context) Key() Key {
	return Key{
		County:        c.County,
		SystemType:    c.SystemType,
		PitchTier:     c.PitchTier,
		StoryTier:     roof.StoryTierFor(c.StoryCount),
		TearOffLayers: c.TearOffLayers,
		HVHZ:          c.HVHZ,
	}
}
