package measurement

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// Typical South Florida single-family footprints.
const (
	minFootprintSqFt = 1400
	maxFootprintSqFt = 3200
)

var heuristicRises = []float64{4, 5, 6, 7, 8}

// Heuristic estimates a plausible roof from the coordinates alone. The same
// request and seed always produce the same measurement.
type Heuristic struct {
	seed uint64
}

func NewHeuristic(seed uint64) *Heuristic {
	return &Heuristic{seed: seed}
}

func (h *Heuristic) Method() roof.Method { return roof.MethodHeuristic }

func (h *Heuristic) Available(context.Context, Request) (bool, error) { return true, nil }

func (h *Heuristic) Measure(_ context.Context, req Request) (roof.Measurement, error) {
	rng := rand.New(rand.NewPCG(h.seed, requestHash(req)))

	footprint := minFootprintSqFt + rng.Float64()*(maxFootprintSqFt-minFootprintSqFt)
	rise := heuristicRises[rng.IntN(len(heuristicRises))]

	pitched := footprint
	var sections []roof.Section
	if rng.IntN(10) < 3 {
		// Florida rooms and porches are commonly a flat rear section.
		flat := footprint * (0.10 + rng.Float64()*0.10)
		pitched -= flat
		sections = append(sections, roof.Section{
			ID:           "heuristic-flat",
			Kind:         roof.Flat,
			PlanAreaSqFt: round1(flat),
			Complexity:   roof.Complexity{Facets: 1, Penetrations: rng.IntN(3)},
			SystemType:   roof.Flat.DefaultSystem(),
		})
	}
	sections = append([]roof.Section{{
		ID:           "heuristic-main",
		Kind:         roof.Sloped,
		PlanAreaSqFt: round1(pitched),
		RisePer12:    roof.Float(rise),
		Complexity: roof.Complexity{
			Facets:       4 + rng.IntN(11),
			HipsValleys:  1 + rng.IntN(6),
			Penetrations: 2 + rng.IntN(7),
		},
		SystemType: roof.Sloped.DefaultSystem(),
	}}, sections...)

	return roof.Measurement{
		Quality:  roof.QualityMedium,
		Sections: sections,
		Imagery:  roof.Imagery{Provider: "heuristic"},
		Metadata: map[string]string{"seed": strconv.FormatUint(h.seed, 10)},
	}, nil
}

func requestHash(req Request) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(req.Lat))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(req.Lng))
	h.Write(buf[:])
	h.Write([]byte(req.PlaceID))
	return h.Sum64()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
