package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/db"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/migrations"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if _, err := migrations.Up(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return New(database)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWasteRuleConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.WasteRuleConfig(ctx); !errors.Is(err, ErrWasteRulesNotConfigured) {
		t.Fatalf("err = %v, want ErrWasteRulesNotConfigured", err)
	}

	cfg := waste.DefaultConfig()
	cfg.BasePercent = 10
	if err := s.SaveWasteRuleConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveWasteRuleConfig: %v", err)
	}
	got, err := s.WasteRuleConfig(ctx)
	if err != nil {
		t.Fatalf("WasteRuleConfig: %v", err)
	}
	if got.BasePercent != 10 || len(got.Facets) != 4 || got.Facets[3].Max != nil || *got.Facets[0].Max != 6 {
		t.Fatalf("round trip lost data: %+v", got)
	}

	bad := cfg
	bad.MaxPercent = 1
	if err := s.SaveWasteRuleConfig(ctx, bad); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func shingleEntry(county string) pricing.Entry {
	return pricing.Entry{
		Key: pricing.Key{
			County:     county,
			SystemType: roof.Shingle,
			PitchTier:  roof.PitchLow,
			StoryTier:  roof.OneStory,
		},
		PricePerSquareCents: 45000,
		Multipliers: pricing.Multipliers{
			Pitch:         map[roof.PitchTier]decimal.Decimal{roof.PitchLow: dec("1.00")},
			PerExtraStory: dec("1.08"),
		},
		FixedAdders: []pricing.FixedAdder{
			{Name: "Permit", PercentOfJob: dec("2")},
			{Name: "Disposal", Amount: dec("350")},
		},
	}
}

func TestRateCardEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := shingleEntry("DEFAULT").Key

	if _, err := s.RateCardEntry(ctx, key); !errors.Is(err, pricing.ErrEntryNotFound) {
		t.Fatalf("err = %v, want ErrEntryNotFound", err)
	}

	if err := s.UpsertRateCardEntry(ctx, shingleEntry("default")); err != nil {
		t.Fatalf("UpsertRateCardEntry: %v", err)
	}
	got, err := s.RateCardEntry(ctx, key)
	if err != nil {
		t.Fatalf("RateCardEntry: %v", err)
	}
	if got.PricePerSquareCents != 45000 || !got.Multipliers.PerExtraStory.Equal(dec("1.08")) {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if !got.Multipliers.Pitch[roof.PitchLow].Equal(dec("1")) {
		t.Fatalf("pitch table lost: %+v", got.Multipliers.Pitch)
	}
	if len(got.FixedAdders) != 2 || !got.FixedAdders[0].PercentOfJob.Equal(dec("2")) {
		t.Fatalf("fixed adders lost: %+v", got.FixedAdders)
	}

	updated := shingleEntry("DEFAULT")
	updated.PricePerSquareCents = 47500
	if err := s.UpsertRateCardEntry(ctx, updated); err != nil {
		t.Fatalf("UpsertRateCardEntry: %v", err)
	}
	if n, _ := s.CountRateCardEntries(ctx, ""); n != 1 {
		t.Fatalf("rows = %d, want 1 after upsert", n)
	}
	got, _ = s.RateCardEntry(ctx, key)
	if got.PricePerSquareCents != 47500 {
		t.Fatalf("price = %d, want 47500", got.PricePerSquareCents)
	}

	invalid := shingleEntry("DEFAULT")
	invalid.Key.PitchTier = roof.PitchNone
	if err := s.UpsertRateCardEntry(ctx, invalid); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestEngineOverStoreFallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertRateCardEntry(ctx, shingleEntry("DEFAULT")); err != nil {
		t.Fatalf("UpsertRateCardEntry: %v", err)
	}

	engine := pricing.NewEngine(s, nil)
	job, _ := pricing.NewJob("Collier", 1, 0, nil)
	p, err := engine.PriceSection(ctx, pricing.SectionInput{
		SectionID:    "main",
		FinalSquares: dec("10"),
		Context:      job.ForSection(roof.Sloped, roof.Shingle, roof.PitchLow),
	})
	if err != nil {
		t.Fatalf("PriceSection: %v", err)
	}
	if !p.CountyFallback || !p.TotalPrice.Equal(dec("4940")) {
		t.Fatalf("fallback = %v total = %s, want fallback and 4940.00", p.CountyFallback, p.TotalPrice)
	}

	tile := job.ForSection(roof.Sloped, roof.Tile, roof.PitchLow)
	if _, err := engine.PriceSection(ctx, pricing.SectionInput{SectionID: "main", FinalSquares: dec("10"), Context: tile}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestFinancePlans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	minAmount := dec("5000")
	active, err := s.SaveFinancePlan(ctx, finance.Plan{
		Name: "Home improvement 120", APRMin: dec("7.99"), APRMax: dec("12.99"),
		TermMinMonths: 60, TermMaxMonths: 120, DealerFeePercent: dec("3.5"),
		MinAmount: &minAmount, Active: true,
	})
	if err != nil {
		t.Fatalf("SaveFinancePlan: %v", err)
	}
	if active.ID == "" {
		t.Fatalf("plan id not assigned")
	}
	if _, err := s.SaveFinancePlan(ctx, finance.Plan{Name: "Retired", TermMinMonths: 12, TermMaxMonths: 12}); err != nil {
		t.Fatalf("SaveFinancePlan: %v", err)
	}

	plans, err := s.ListActiveFinancePlans(ctx)
	if err != nil {
		t.Fatalf("ListActiveFinancePlans: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != active.ID {
		t.Fatalf("active plans = %+v", plans)
	}
	p := plans[0]
	if !p.APRMin.Equal(dec("7.99")) || !p.DealerFeePercent.Equal(dec("3.5")) || p.MaxAmount != nil {
		t.Fatalf("plan round trip lost data: %+v", p)
	}
	if p.MinAmount == nil || !p.MinAmount.Equal(minAmount) {
		t.Fatalf("min amount = %v, want 5000", p.MinAmount)
	}

	all, _ := s.ListFinancePlans(ctx)
	if len(all) != 2 {
		t.Fatalf("all plans = %d, want 2", len(all))
	}

	active.Active = false
	if _, err := s.SaveFinancePlan(ctx, active); err != nil {
		t.Fatalf("SaveFinancePlan: %v", err)
	}
	plans, _ = s.ListActiveFinancePlans(ctx)
	if len(plans) != 0 {
		t.Fatalf("deactivated plan still listed: %+v", plans)
	}
}

func saveQuote(t *testing.T, s *Store, createdAt, title, address, total string) QuoteRecord {
	t.Helper()

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	rec, err := s.SaveQuote(context.Background(), QuoteRecord{
		CreatedAt: ts,
		Title:     title,
		Address:   address,
		Quote: quote.Result{
			Job:    pricing.Job{County: "BROWARD", StoryCount: 1},
			Totals: pricing.Totals{Total: dec(total)},
			Total:  dec(total),
		},
	})
	if err != nil {
		t.Fatalf("SaveQuote: %v", err)
	}
	return rec
}

func TestListQuotesOrdersByDateDescAndReadsTotal(t *testing.T) {
	s := newTestStore(t)

	saveQuote(t, s, "2024-01-01 10:00:00", "First", "1 Ocean Dr", "100.50")
	saveQuote(t, s, "2024-01-03 12:00:00", "Third", "3 Las Olas Blvd", "300.00")
	saveQuote(t, s, "2024-01-02 11:00:00", "Second", "2 Brickell Ave", "200.25")

	quotes, err := s.ListQuotes(context.Background(), "")
	if err != nil {
		t.Fatalf("ListQuotes returned error: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}
	if quotes[0].Title != "Third" || quotes[1].Title != "Second" || quotes[2].Title != "First" {
		t.Fatalf("quotes are not sorted desc by created_at: %+v", quotes)
	}
	if !quotes[0].Total.Equal(dec("300")) || !quotes[1].Total.Equal(dec("200.25")) || !quotes[2].Total.Equal(dec("100.50")) {
		t.Fatalf("unexpected totals: %+v", quotes)
	}
	if quotes[0].County != "BROWARD" || quotes[0].CreatedAt.Day() != 3 {
		t.Fatalf("unexpected summary: %+v", quotes[0])
	}
}

func TestListQuotesFilterByTitleAndAddress(t *testing.T) {
	s := newTestStore(t)

	saveQuote(t, s, "2024-01-01 10:00:00", "Garcia residence", "12 Coral Way", "80")
	saveQuote(t, s, "2024-01-02 10:00:00", "Warehouse", "400 Industrial Rd", "120")
	saveQuote(t, s, "2024-01-03 10:00:00", "Duplex", "7 Coral Reef Dr", "160")

	byTitle, err := s.ListQuotes(context.Background(), "Ware")
	if err != nil {
		t.Fatalf("ListQuotes title filter returned error: %v", err)
	}
	if len(byTitle) != 1 || byTitle[0].Title != "Warehouse" {
		t.Fatalf("expected 1 quote filtered by title, got %+v", byTitle)
	}

	byAddress, err := s.ListQuotes(context.Background(), "coral")
	if err != nil {
		t.Fatalf("ListQuotes address filter returned error: %v", err)
	}
	if len(byAddress) != 2 {
		t.Fatalf("expected 2 quotes filtered by address, got %+v", byAddress)
	}
}

func TestGetQuote(t *testing.T) {
	s := newTestStore(t)
	saved := saveQuote(t, s, "2024-02-01 09:30:00", "Snapshot", "1 Main St", "8908.00")

	got, err := s.GetQuote(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if got.Title != "Snapshot" || !got.Quote.Total.Equal(dec("8908")) || !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.GetQuote(context.Background(), "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestManualOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.ManualOverride(ctx, "place-1"); ok || err != nil {
		t.Fatalf("ManualOverride = %v, %v; want missing", ok, err)
	}

	sections := []roof.Section{
		{ID: "main", Kind: roof.Sloped, PlanAreaSqFt: 1800, RisePer12: roof.Float(5)},
		{ID: "porch", Kind: roof.Flat, PlanAreaSqFt: 240},
	}
	if err := s.SetManualOverride(ctx, "place-1", sections); err != nil {
		t.Fatalf("SetManualOverride: %v", err)
	}
	got, ok, err := s.ManualOverride(ctx, "place-1")
	if err != nil || !ok {
		t.Fatalf("ManualOverride = %v, %v", ok, err)
	}
	if len(got) != 2 || got[0].Rise() != 5 || got[0].SystemType != roof.Shingle || got[1].SystemType != roof.TPO {
		t.Fatalf("unexpected sections: %+v", got)
	}

	bad := []roof.Section{{ID: "x", Kind: roof.Flat, PlanAreaSqFt: 100, SystemType: roof.Metal}}
	if err := s.SetManualOverride(ctx, "place-2", bad); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	deleted, err := s.DeleteManualOverride(ctx, "place-1")
	if err != nil || !deleted {
		t.Fatalf("DeleteManualOverride = %v, %v", deleted, err)
	}
	if _, ok, _ := s.ManualOverride(ctx, "place-1"); ok {
		t.Fatalf("override still present after delete")
	}
}

func TestInTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Store) error {
		if err := tx.SaveWasteRuleConfig(ctx, waste.DefaultConfig()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if ok, _ := s.HasWasteRuleConfig(ctx); ok {
		t.Fatalf("rolled back write is visible")
	}
}
