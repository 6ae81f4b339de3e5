package measurement

import (
	"context"
	"fmt"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

// OverrideStore holds operator-entered sections keyed by Request.OverrideKey.
type OverrideStore interface {
	ManualOverride(ctx context.Context, key string) ([]roof.Section, bool, error)
}

// Manual serves measurements an operator entered by hand. It is available
// only for requests that have an override.
type Manual struct {
	store OverrideStore
}

func NewManual(store OverrideStore) *Manual {
	return &Manual{store: store}
}

func (m *Manual) Method() roof.Method { return roof.MethodManual }

func (m *Manual) Available(ctx context.Context, req Request) (bool, error) {
	_, ok, err := m.store.ManualOverride(ctx, req.OverrideKey())
	return ok, err
}

func (m *Manual) Measure(ctx context.Context, req Request) (roof.Measurement, error) {
	key := req.OverrideKey()
	sections, ok, err := m.store.ManualOverride(ctx, key)
	if err != nil {
		return roof.Measurement{}, err
	}
	if !ok {
		return roof.Measurement{}, fmt.Errorf("override %q was removed", key)
	}
	return roof.Measurement{
		Quality:  roof.QualityHigh,
		Sections: sections,
		Imagery:  roof.Imagery{Provider: "operator"},
		Metadata: map[string]string{"overrideKey": key},
	}, nil
}
