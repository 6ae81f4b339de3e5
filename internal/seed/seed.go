package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/finance"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/pricing"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/waste"
)

//go:embed seed.yaml
var defaultDocument []byte

// Options controls a seed run.
type Options struct {
	// Overwrite replaces existing rows instead of leaving admin edits alone.
	Overwrite bool
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

type systemDoc struct {
	BasePrice string            `yaml:"base_price"`
	Pitch     map[string]string `yaml:"pitch"`
}

type countyDoc struct {
	Name       string `yaml:"name"`
	Multiplier string `yaml:"multiplier"`
}

type adderDoc struct {
	Name         string `yaml:"name"`
	Amount       string `yaml:"amount"`
	PercentOfJob string `yaml:"percent_of_job"`
}

type rateCardDoc struct {
	HVHZFactor      string               `yaml:"hvhz_factor"`
	PerExtraStory   string               `yaml:"per_extra_story"`
	TearOffPerLayer string               `yaml:"tear_off_per_layer"`
	Systems         map[string]systemDoc `yaml:"systems"`
	Counties        []countyDoc          `yaml:"counties"`
	FixedAdders     []adderDoc           `yaml:"fixed_adders"`
}

type planDoc struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	APRMin           string `yaml:"apr_min"`
	APRMax           string `yaml:"apr_max"`
	TermMinMonths    int    `yaml:"term_min_months"`
	TermMaxMonths    int    `yaml:"term_max_months"`
	DealerFeePercent string `yaml:"dealer_fee_percent"`
	MinAmount        string `yaml:"min_amount"`
	MaxAmount        string `yaml:"max_amount"`
	Active           bool   `yaml:"active"`
}

// Document is the parsed seed data.
type Document struct {
	WasteRules   waste.Config `yaml:"waste_rules"`
	RateCard     rateCardDoc  `yaml:"rate_card"`
	FinancePlans []planDoc    `yaml:"finance_plans"`
}

// Load parses the embedded seed document.
func Load() (Document, error) {
	return Parse(defaultDocument)
}

// Parse decodes a seed document.
func Parse(raw []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse seed document: %w", err)
	}
	return doc, nil
}

// Run executes the seed in an idempotent way inside one transaction.
func Run(ctx context.Context, db *sql.DB, opts Options) (Stats, error) {
	doc, err := Load()
	if err != nil {
		return Stats{}, err
	}
	return Apply(ctx, store.New(db), doc, opts)
}

// Apply writes doc through s in a single transaction.
func Apply(ctx context.Context, s *store.Store, doc Document, opts Options) (Stats, error) {
	entries, err := doc.RateCardEntries()
	if err != nil {
		return Stats{}, err
	}
	plans, err := doc.Plans()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	err = s.InTx(ctx, func(tx *store.Store) error {
		if err := ensureWasteRules(ctx, tx, doc.WasteRules, opts, &stats); err != nil {
			return err
		}
		for _, e := range entries {
			if err := ensureRateCardEntry(ctx, tx, e, opts, &stats); err != nil {
				return err
			}
		}
		for _, p := range plans {
			if err := ensureFinancePlan(ctx, tx, p, opts, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func count(existed bool, stats *Stats) {
	if existed {
		stats.Updates++
	} else {
		stats.Inserts++
	}
}

func ensureWasteRules(ctx context.Context, tx *store.Store, cfg waste.Config, opts Options, stats *Stats) error {
	exists, err := tx.HasWasteRuleConfig(ctx)
	if err != nil {
		return err
	}
	if exists && !opts.Overwrite {
		return nil
	}
	if err := tx.SaveWasteRuleConfig(ctx, cfg); err != nil {
		return fmt.Errorf("seed waste rules: %w", err)
	}
	count(exists, stats)
	return nil
}

func ensureRateCardEntry(ctx context.Context, tx *store.Store, e pricing.Entry, opts Options, stats *Stats) error {
	exists, err := tx.HasRateCardEntry(ctx, e.Key)
	if err != nil {
		return err
	}
	if exists && !opts.Overwrite {
		return nil
	}
	if err := tx.UpsertRateCardEntry(ctx, e); err != nil {
		return fmt.Errorf("seed rate card: %w", err)
	}
	count(exists, stats)
	return nil
}

func ensureFinancePlan(ctx context.Context, tx *store.Store, p finance.Plan, opts Options, stats *Stats) error {
	exists, err := tx.HasFinancePlan(ctx, p.ID)
	if err != nil {
		return err
	}
	if exists && !opts.Overwrite {
		return nil
	}
	if _, err := tx.SaveFinancePlan(ctx, p); err != nil {
		return fmt.Errorf("seed finance plan: %w", err)
	}
	count(exists, stats)
	return nil
}

// RateCardEntries expands the rate card over every county, system, pitch
// tier, story tier, tear-off count and HVHZ flag. HVHZ rows carry the HVHZ
// factor in their stored price and a neutral HVHZ multiplier.
func (d Document) RateCardEntries() ([]pricing.Entry, error) {
	rc := d.RateCard
	hvhz, err := parseDecimal("hvhz_factor", rc.HVHZFactor)
	if err != nil {
		return nil, err
	}
	perStory, err := parseDecimal("per_extra_story", rc.PerExtraStory)
	if err != nil {
		return nil, err
	}
	perLayer, err := parseDecimal("tear_off_per_layer", rc.TearOffPerLayer)
	if err != nil {
		return nil, err
	}
	adders, err := rc.adders()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rc.Systems))
	for name := range rc.Systems {
		names = append(names, name)
	}
	sort.Strings(names)

	var entries []pricing.Entry
	for _, county := range rc.Counties {
		countyFactor, err := parseDecimal(county.Name+" multiplier", county.Multiplier)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			system := roof.SystemType(name)
			family, ok := system.Family()
			if !ok {
				return nil, fmt.Errorf("seed rate card: unknown system %q", name)
			}
			sd := rc.Systems[name]
			base, err := parseDecimal(name+" base_price", sd.BasePrice)
			if err != nil {
				return nil, err
			}
			pitch, err := sd.pitchTable()
			if err != nil {
				return nil, err
			}

			tiers := []roof.PitchTier{roof.PitchNone}
			if family == roof.FamilyPitched {
				tiers = []roof.PitchTier{roof.PitchLow, roof.PitchMedium, roof.PitchSteep}
			}
			for _, tier := range tiers {
				for story := roof.OneStory; story <= roof.ThreePlus; story++ {
					for layers := 0; layers <= roof.MaxTearOffLayers; layers++ {
						for _, inHVHZ := range []bool{false, true} {
							price := base.Mul(countyFactor)
							if inHVHZ {
								price = price.Mul(hvhz)
							}
							entries = append(entries, pricing.Entry{
								Key: pricing.Key{
									County:        pricing.NormalizeCounty(county.Name),
									SystemType:    system,
									PitchTier:     tier,
									StoryTier:     story,
									TearOffLayers: layers,
									HVHZ:          inHVHZ,
								},
								PricePerSquareCents: price.Shift(2).Round(0).IntPart(),
								Multipliers: pricing.Multipliers{
									Pitch:           pitch,
									PerExtraStory:   perStory,
									TearOffPerLayer: perLayer,
									HVHZ:            decimal.NewFromInt(1),
								},
								FixedAdders: adders,
							})
						}
					}
				}
			}
		}
	}
	return entries, nil
}

func (s systemDoc) pitchTable() (map[roof.PitchTier]decimal.Decimal, error) {
	if len(s.Pitch) == 0 {
		return nil, nil
	}
	table := make(map[roof.PitchTier]decimal.Decimal, len(s.Pitch))
	for tier, raw := range s.Pitch {
		f, err := parseDecimal("pitch "+tier, raw)
		if err != nil {
			return nil, err
		}
		table[roof.PitchTier(tier)] = f
	}
	return table, nil
}

func (rc rateCardDoc) adders() ([]pricing.FixedAdder, error) {
	adders := make([]pricing.FixedAdder, 0, len(rc.FixedAdders))
	for _, a := range rc.FixedAdders {
		amount, err := parseOptionalDecimal(a.Name+" amount", a.Amount)
		if err != nil {
			return nil, err
		}
		percent, err := parseOptionalDecimal(a.Name+" percent_of_job", a.PercentOfJob)
		if err != nil {
			return nil, err
		}
		adders = append(adders, pricing.FixedAdder{Name: a.Name, Amount: amount, PercentOfJob: percent})
	}
	return adders, nil
}

// Plans converts the document's finance plans.
func (d Document) Plans() ([]finance.Plan, error) {
	plans := make([]finance.Plan, 0, len(d.FinancePlans))
	for _, pd := range d.FinancePlans {
		p := finance.Plan{
			ID:            pd.ID,
			Name:          pd.Name,
			TermMinMonths: pd.TermMinMonths,
			TermMaxMonths: pd.TermMaxMonths,
			Active:        pd.Active,
		}
		var err error
		if p.APRMin, err = parseDecimal(pd.Name+" apr_min", pd.APRMin); err != nil {
			return nil, err
		}
		if p.APRMax, err = parseDecimal(pd.Name+" apr_max", pd.APRMax); err != nil {
			return nil, err
		}
		if p.DealerFeePercent, err = parseOptionalDecimal(pd.Name+" dealer_fee_percent", pd.DealerFeePercent); err != nil {
			return nil, err
		}
		if pd.MinAmount != "" {
			v, err := parseDecimal(pd.Name+" min_amount", pd.MinAmount)
			if err != nil {
				return nil, err
			}
			p.MinAmount = &v
		}
		if pd.MaxAmount != "" {
			v, err := parseDecimal(pd.Name+" max_amount", pd.MaxAmount)
			if err != nil {
				return nil, err
			}
			p.MaxAmount = &v
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("seed %s: %w", field, err)
	}
	return d, nil
}

func parseOptionalDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(field, raw)
}
