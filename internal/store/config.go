package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

// ErrWasteRulesNotConfigured is returned when no waste rule set has been saved.
var ErrWasteRulesNotConfigured = errors.New("waste rules not configured")

// WasteRuleConfig returns the saved waste rules.
func (s *Store) WasteRuleConfig(ctx context.Context) (waste.Config, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `SELECT config_json FROM waste_rule_config WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return waste.Config{}, ErrWasteRulesNotConfigured
	}
	if err != nil {
		return waste.Config{}, fmt.Errorf("query waste rules: %w", err)
	}
	var cfg waste.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return waste.Config{}, fmt.Errorf("decode waste rules: %w", err)
	}
	return cfg, nil
}

func (s *Store) HasWasteRuleConfig(ctx context.Context) (bool, error) {
	ok, err := s.exists(ctx, `SELECT 1 FROM waste_rule_config WHERE id = 1`)
	if err != nil {
		return false, fmt.Errorf("check waste rules existence: %w", err)
	}
	return ok, nil
}

// SaveWasteRuleConfig validates and replaces the waste rules.
func (s *Store) SaveWasteRuleConfig(ctx context.Context, cfg waste.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode waste rules: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO waste_rule_config (id, config_json, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = CURRENT_TIMESTAMP
	`, string(raw)); err != nil {
		return fmt.Errorf("save waste rules: %w", err)
	}
	return nil
}

// RateCardEntry returns the row for key, or an error wrapping
// pricing.ErrEntryNotFound.
func (s *Store) RateCardEntry(ctx context.Context, key pricing.Key) (pricing.Entry, error) {
	entry := pricing.Entry{Key: key}
	var multipliers, adders string
	err := s.q.QueryRowContext(ctx, `
		SELECT price_per_square_cents, multipliers_json, fixed_adders_json
		FROM rate_cards
		WHERE county = ? AND system_type = ? AND pitch_tier = ? AND story_tier = ? AND tear_off_layers = ? AND hvhz = ?
	`, key.County, string(key.SystemType), string(key.PitchTier), int(key.StoryTier), key.TearOffLayers, boolInt(key.HVHZ)).
		Scan(&entry.PricePerSquareCents, &multipliers, &adders)
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Entry{}, fmt.Errorf("%w: %s", pricing.ErrEntryNotFound, key)
	}
	if err != nil {
		return pricing.Entry{}, fmt.Errorf("query rate card %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(multipliers), &entry.Multipliers); err != nil {
		return pricing.Entry{}, fmt.Errorf("decode multipliers of %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(adders), &entry.FixedAdders); err != nil {
		return pricing.Entry{}, fmt.Errorf("decode fixed adders of %s: %w", key, err)
	}
	return entry, nil
}

func (s *Store) HasRateCardEntry(ctx context.Context, key pricing.Key) (bool, error) {
	ok, err := s.exists(ctx, `
		SELECT 1 FROM rate_cards
		WHERE county = ? AND system_type = ? AND pitch_tier = ? AND story_tier = ? AND tear_off_layers = ? AND hvhz = ?
	`, key.County, string(key.SystemType), string(key.PitchTier), int(key.StoryTier), key.TearOffLayers, boolInt(key.HVHZ))
	if err != nil {
		return false, fmt.Errorf("check rate card existence: %w", err)
	}
	return ok, nil
}

// UpsertRateCardEntry validates e and inserts or replaces its row.
func (s *Store) UpsertRateCardEntry(ctx context.Context, e pricing.Entry) error {
	e.Key.County = pricing.NormalizeCounty(e.Key.County)
	if err := e.Validate(); err != nil {
		return err
	}
	if e.FixedAdders == nil {
		e.FixedAdders = []pricing.FixedAdder{}
	}
	multipliers, err := json.Marshal(e.Multipliers)
	if err != nil {
		return fmt.Errorf("encode multipliers: %w", err)
	}
	adders, err := json.Marshal(e.FixedAdders)
	if err != nil {
		return fmt.Errorf("encode fixed adders: %w", err)
	}

	k := e.Key
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO rate_cards (
			county, system_type, pitch_tier, story_tier, tear_off_layers, hvhz,
			price_per_square_cents, multipliers_json, fixed_adders_json, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(county, system_type, pitch_tier, story_tier, tear_off_layers, hvhz) DO UPDATE SET
			price_per_square_cents = excluded.price_per_square_cents,
			multipliers_json = excluded.multipliers_json,
			fixed_adders_json = excluded.fixed_adders_json,
			updated_at = CURRENT_TIMESTAMP
	`, k.County, string(k.SystemType), string(k.PitchTier), int(k.StoryTier), k.TearOffLayers, boolInt(k.HVHZ),
		e.PricePerSquareCents, string(multipliers), string(adders)); err != nil {
		return fmt.Errorf("upsert rate card %s: %w", k, err)
	}
	return nil
}

// CountRateCardEntries counts rows, optionally for a single county.
func (s *Store) CountRateCardEntries(ctx context.Context, county string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rate_cards WHERE (? = '' OR county = ?)
	`, county, county).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rate cards: %w", err)
	}
	return n, nil
}

const financePlanColumns = `
	id, name, apr_min, apr_max, term_min_months, term_max_months,
	dealer_fee_percent, min_amount, max_amount, active
`

// ListActiveFinancePlans returns the active plans ordered by name.
func (s *Store) ListActiveFinancePlans(ctx context.Context) ([]finance.Plan, error) {
	return s.listFinancePlans(ctx, true)
}

// ListFinancePlans returns every plan, active or not.
func (s *Store) ListFinancePlans(ctx context.Context) ([]finance.Plan, error) {
	return s.listFinancePlans(ctx, false)
}

func (s *Store) listFinancePlans(ctx context.Context, activeOnly bool) ([]finance.Plan, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+financePlanColumns+`
		FROM finance_plans
		WHERE (? = 0 OR active = 1)
		ORDER BY name
	`, boolInt(activeOnly))
	if err != nil {
		return nil, fmt.Errorf("query finance plans: %w", err)
	}
	defer rows.Close()

	plans := make([]finance.Plan, 0)
	for rows.Next() {
		var p finance.Plan
		var minAmount, maxAmount decimal.NullDecimal
		if err := rows.Scan(&p.ID, &p.Name, &p.APRMin, &p.APRMax, &p.TermMinMonths, &p.TermMaxMonths,
			&p.DealerFeePercent, &minAmount, &maxAmount, &p.Active); err != nil {
			return nil, fmt.Errorf("scan finance plan: %w", err)
		}
		if minAmount.Valid {
			p.MinAmount = &minAmount.Decimal
		}
		if maxAmount.Valid {
			p.MaxAmount = &maxAmount.Decimal
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finance plans: %w", err)
	}
	return plans, nil
}

func (s *Store) HasFinancePlan(ctx context.Context, id string) (bool, error) {
	ok, err := s.exists(ctx, `SELECT 1 FROM finance_plans WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("check finance plan existence: %w", err)
	}
	return ok, nil
}

// SaveFinancePlan validates p and inserts or replaces it by ID. A plan
// without an ID gets a new one.
func (s *Store) SaveFinancePlan(ctx context.Context, p finance.Plan) (finance.Plan, error) {
	if err := p.Validate(); err != nil {
		return finance.Plan{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var minAmount, maxAmount decimal.NullDecimal
	if p.MinAmount != nil {
		minAmount = decimal.NewNullDecimal(*p.MinAmount)
	}
	if p.MaxAmount != nil {
		maxAmount = decimal.NewNullDecimal(*p.MaxAmount)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO finance_plans (`+financePlanColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			apr_min = excluded.apr_min,
			apr_max = excluded.apr_max,
			term_min_months = excluded.term_min_months,
			term_max_months = excluded.term_max_months,
			dealer_fee_percent = excluded.dealer_fee_percent,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			active = excluded.active,
			updated_at = CURRENT_TIMESTAMP
	`, p.ID, p.Name, p.APRMin, p.APRMax, p.TermMinMonths, p.TermMaxMonths,
		p.DealerFeePercent, minAmount, maxAmount, p.Active); err != nil {
		return finance.Plan{}, fmt.Errorf("save finance plan %q: %w", p.Name, err)
	}
	return p, nil
}
