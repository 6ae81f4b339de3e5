package waste

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

type fakeSource struct {
	mu    sync.Mutex
	cfg   Config
	err   error
	calls atomic.Int32
}

func (f *fakeSource) WasteRuleConfig(context.Context) (Config, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.err
}

func (f *fakeSource) set(cfg Config, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg, f.err = cfg, err
}

func TestEvaluate_DefaultTableScenario(t *testing.T) {
	r, err := Evaluate(1000, roof.Complexity{Facets: 9, HipsValleys: 4, Penetrations: 6}, DefaultConfig())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	nearlyEqual(t, "base", r.BasePercent, 12)
	nearlyEqual(t, "facets", r.FacetsAdder, 2)
	nearlyEqual(t, "hipsValleys", r.HipsValleysAdder, 1)
	nearlyEqual(t, "penetrations", r.PenetrationsAdder, 1)
	nearlyEqual(t, "total", r.TotalWastePercent, 16)
	nearlyEqual(t, "finalArea", r.FinalAreaSqFt, 1160)
	nearlyEqual(t, "finalSquares", r.FinalSquares, 11.6)
	if r.Capped {
		t.Fatalf("16%% should not be capped at 22%%")
	}
}

func TestEvaluate_ClampsToMax(t *testing.T) {
	cfg := DefaultConfig()
	for facets := 0; facets < 40; facets++ {
		for hips := 0; hips < 15; hips++ {
			for pens := 0; pens < 12; pens++ {
				r, err := Evaluate(500, roof.Complexity{Facets: facets, HipsValleys: hips, Penetrations: pens}, cfg)
				if err != nil {
					t.Fatalf("Evaluate: %v", err)
				}
				if r.TotalWastePercent > cfg.MaxPercent {
					t.Fatalf("total %v exceeds max %v for %d/%d/%d", r.TotalWastePercent, cfg.MaxPercent, facets, hips, pens)
				}
			}
		}
	}

	r, _ := Evaluate(500, roof.Complexity{Facets: 30, HipsValleys: 20, Penetrations: 20}, cfg)
	if !r.Capped || r.TotalWastePercent != 22 {
		t.Fatalf("expected capped total 22, got %+v", r)
	}
}

func TestEvaluate_UnmatchedValueContributesZero(t *testing.T) {
	cfg := Config{
		BasePercent: 10,
		MaxPercent:  30,
		Facets:      []Tier{{Min: 5, Max: bound(8), Percent: 3}},
	}
	r, err := Evaluate(100, roof.Complexity{Facets: 2}, cfg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	nearlyEqual(t, "total", r.TotalWastePercent, 10)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	c := roof.Complexity{Facets: 14, HipsValleys: 7, Penetrations: 3}
	first, _ := Evaluate(1341.64, c, DefaultConfig())
	for i := 0; i < 50; i++ {
		again, _ := Evaluate(1341.64, c, DefaultConfig())
		if again != first {
			t.Fatalf("iteration %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestEvaluate_RejectsInvalidInput(t *testing.T) {
	if _, err := Evaluate(0, roof.Complexity{}, DefaultConfig()); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("zero area error = %v, want validation", err)
	}
	if _, err := Evaluate(10, roof.Complexity{Penetrations: -1}, DefaultConfig()); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("negative penetrations error = %v, want validation", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	overlapping := DefaultConfig()
	overlapping.Facets = []Tier{{Min: 0, Max: bound(7), Percent: 0}, {Min: 7, Max: bound(12), Percent: 2}}
	if err := overlapping.Validate(); err == nil {
		t.Fatalf("expected overlap error")
	}

	inverted := DefaultConfig()
	inverted.MaxPercent = 5
	if err := inverted.Validate(); err == nil {
		t.Fatalf("expected base > max error")
	}

	openMiddle := DefaultConfig()
	openMiddle.Penetrations = []Tier{{Min: 0, Percent: 0}, {Min: 4, Percent: 1}}
	if err := openMiddle.Validate(); err == nil {
		t.Fatalf("expected error for tier after an open-ended tier")
	}
}

func TestEvaluator_CachesUntilInvalidated(t *testing.T) {
	stored := DefaultConfig()
	stored.BasePercent = 10
	src := &fakeSource{cfg: stored}
	ev := NewEvaluator(src, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r, err := ev.Evaluate(ctx, 1000, roof.Complexity{})
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if r.TotalWastePercent != 10 || r.ConfigSource != SourceStore || r.Degraded {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}

	updated := stored
	updated.BasePercent = 14
	src.set(updated, nil)
	ev.Invalidate()

	r, err := ev.Evaluate(ctx, 1000, roof.Complexity{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r.TotalWastePercent != 14 {
		t.Fatalf("after invalidate total = %v, want 14", r.TotalWastePercent)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2", got)
	}
}

func TestEvaluator_FallsBackToDefaultsAndFlagsIt(t *testing.T) {
	src := &fakeSource{err: errors.New("database is locked")}
	ev := NewEvaluator(src, nil)

	r, err := ev.Evaluate(context.Background(), 1000, roof.Complexity{Facets: 9, HipsValleys: 4, Penetrations: 6})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !r.Degraded || r.ConfigSource != SourceDefault {
		t.Fatalf("expected degraded default result, got %+v", r)
	}
	nearlyEqual(t, "total", r.TotalWastePercent, 16)

	// Failures are not cached: once the store recovers its rules are used.
	recovered := DefaultConfig()
	recovered.BasePercent = 11
	src.set(recovered, nil)
	r, _ = ev.Evaluate(context.Background(), 1000, roof.Complexity{})
	if r.Degraded || r.TotalWastePercent != 11 {
		t.Fatalf("expected store rules after recovery, got %+v", r)
	}
}

func TestEvaluator_InvalidStoredRulesFallBack(t *testing.T) {
	bad := DefaultConfig()
	bad.MaxPercent = 1
	ev := NewEvaluator(&fakeSource{cfg: bad}, nil)

	_, src := ev.Config(context.Background())
	if src != SourceDefault {
		t.Fatalf("source = %q, want %q", src, SourceDefault)
	}
}

func TestEvaluator_ConcurrentReadsAndInvalidations(t *testing.T) {
	src := &fakeSource{cfg: DefaultConfig()}
	ev := NewEvaluator(src, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if i == 0 && j%20 == 0 {
					ev.Invalidate()
				}
				r, err := ev.Evaluate(ctx, 800, roof.Complexity{Facets: 9, HipsValleys: 4, Penetrations: 6})
				if err != nil {
					t.Errorf("Evaluate: %v", err)
					return
				}
				if r.TotalWastePercent != 16 {
					t.Errorf("total = %v, want 16", r.TotalWastePercent)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
