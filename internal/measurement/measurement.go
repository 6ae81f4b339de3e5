// Package measurement acquires roof measurements from an ordered chain of
// sources: a third-party provider, operator overrides, and a deterministic
// heuristic estimate.
package measurement

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// Request identifies the property to measure.
type Request struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	PlaceID string  `json:"placeId,omitempty"`
}

func (r Request) Validate() error {
	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return apperr.Validation("latitude %v out of range", r.Lat)
	}
	if math.IsNaN(r.Lng) || r.Lng < -180 || r.Lng > 180 {
		return apperr.Validation("longitude %v out of range", r.Lng)
	}
	return nil
}

// OverrideKey is the key manual overrides are stored under: the place ID when
// present, otherwise the coordinates rounded to five decimals (about a metre).
func (r Request) OverrideKey() string {
	if id := strings.TrimSpace(r.PlaceID); id != "" {
		return id
	}
	return CoordinateKey(r.Lat, r.Lng)
}

// CoordinateKey formats coordinates the way OverrideKey does.
func CoordinateKey(lat, lng float64) string {
	return fmt.Sprintf("%.5f,%.5f", lat, lng)
}

// Adapter is one measurement source. Available is a cheap probe; Measure does
// the real work and is only called after a successful probe.
type Adapter interface {
	Method() roof.Method
	Available(ctx context.Context, req Request) (bool, error)
	Measure(ctx context.Context, req Request) (roof.Measurement, error)
}
