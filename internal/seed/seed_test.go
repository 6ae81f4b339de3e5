package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/db"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/migrations"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
)

// 4 counties x (3 pitched systems x 3 pitch tiers + 2 flat systems)
// x 3 story tiers x 3 tear-off counts x 2 HVHZ flags
const wantRateCardRows = 4 * 11 * 3 * 3 * 2

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if _, err := migrations.Up(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	ctx := context.Background()
	wantInserts := 1 + wantRateCardRows + 3

	for i := 0; i < 3; i++ {
		stats, err := Run(ctx, database, Options{})
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != wantInserts {
				t.Fatalf("expected %d inserts in first run, got %d", wantInserts, stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 || stats.Updates != 0 {
			t.Fatalf("expected no writes in iteration %d, got %+v", i, stats)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM waste_rule_config`, nil, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_cards`, nil, wantRateCardRows)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_cards WHERE county = ?`, "DEFAULT", wantRateCardRows/4)
	assertCount(t, database, `SELECT COUNT(*) FROM finance_plans WHERE active = 1`, nil, 3)
}

func TestRunOverwriteCountsUpdates(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	ctx := context.Background()
	if _, err := Run(ctx, database, Options{}); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	stats, err := Run(ctx, database, Options{Overwrite: true})
	if err != nil {
		t.Fatalf("run seed with overwrite: %v", err)
	}
	if stats.Inserts != 0 || stats.Updates != 1+wantRateCardRows+3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSeededMiamiDadeShingleBakesCountyAndHVHZ(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	ctx := context.Background()
	if _, err := Run(ctx, database, Options{}); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	s := store.New(database)
	e, err := s.RateCardEntry(ctx, pricing.Key{
		County:     "MIAMI-DADE",
		SystemType: roof.Shingle,
		PitchTier:  roof.PitchLow,
		StoryTier:  roof.OneStory,
		HVHZ:       true,
	})
	if err != nil {
		t.Fatalf("RateCardEntry: %v", err)
	}
	// 450 * 1.15 * 1.15 = 595.125
	if e.PricePerSquareCents != 59513 {
		t.Fatalf("price = %d cents, want 59513", e.PricePerSquareCents)
	}

	engine := pricing.NewEngine(s, nil)
	job, _ := pricing.NewJob("Miami-Dade", 1, 0, nil)
	p, err := engine.PriceSection(ctx, pricing.SectionInput{
		SectionID:    "main",
		FinalSquares: decimal.NewFromInt(12),
		Context:      job.ForSection(roof.Sloped, roof.Shingle, roof.PitchLow),
	})
	if err != nil {
		t.Fatalf("PriceSection: %v", err)
	}
	// 7141.56 + 2% permit 142.83 + 350 disposal + 150 cleanup
	if p.TotalPrice.StringFixed(2) != "7784.39" {
		t.Fatalf("total = %s, want 7784.39", p.TotalPrice.StringFixed(2))
	}
}

func TestDocumentIsValid(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := doc.WasteRules.Validate(); err != nil {
		t.Fatalf("seeded waste rules invalid: %v", err)
	}
	entries, err := doc.RateCardEntries()
	if err != nil {
		t.Fatalf("RateCardEntries: %v", err)
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			t.Fatalf("seeded rate card invalid: %v", err)
		}
	}
	plans, err := doc.Plans()
	if err != nil {
		t.Fatalf("Plans: %v", err)
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			t.Fatalf("seeded plan invalid: %v", err)
		}
	}
}

func TestParseRejectsBadDecimal(t *testing.T) {
	doc, err := Parse([]byte("rate_card:\n  hvhz_factor: lots\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := doc.RateCardEntries(); err == nil {
		t.Fatalf("expected error for a non-numeric factor")
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
