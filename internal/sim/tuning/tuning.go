package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds every knob the marketplace engine reads. Components receive
// the slice of it they need at construction time; nothing reads this through
// a package global.
type Tuning struct {
	RunIntervalSeconds int `yaml:"run_interval_seconds"`

	Sell    SellTuning    `yaml:"sell"`
	Tax     TaxTuning     `yaml:"tax"`
	Dynamic DynamicTuning `yaml:"dynamic"`
	Traders TraderTuning  `yaml:"traders"`
}

// SellTuning governs the simulated sale of player-style offers.
type SellTuning struct {
	BaseChancePercent int `yaml:"base_chance_percent"`
	TimeMinMinutes    int `yaml:"time_min_minutes"`
	TimeMaxMinutes    int `yaml:"time_max_minutes"`
}

type TaxTuning struct {
	ItemTaxPercent        float64 `yaml:"item_tax_percent"`
	RequirementTaxPercent float64 `yaml:"requirement_tax_percent"`
}

// DynamicTuning governs synthesized player-style offers.
type DynamicTuning struct {
	ExpiredOfferThreshold int `yaml:"expired_offer_threshold"`

	OffersPerItem   MinMax  `yaml:"offers_per_item"`
	PriceMultiplier MinMaxF `yaml:"price_multiplier"`

	StackablePercent  MinMax `yaml:"stackable_percent"`
	NonStackableCount MinMax `yaml:"non_stackable_count"`

	Rating          MinMaxF `yaml:"rating"`
	DurationMinutes MinMax  `yaml:"duration_minutes"`

	BarterChancePercent int    `yaml:"barter_chance_percent"`
	BarterItemCount     MinMax `yaml:"barter_item_count"`

	// Currency template id -> relative weight for randomized pricing.
	CurrencyWeights map[string]int `yaml:"currency_weights"`
	// Currency template id -> units per one reference-currency unit.
	CurrencyRates map[string]float64 `yaml:"currency_rates"`

	DefaultPresetsOnly bool `yaml:"default_presets_only"`

	// Base classes whose offers always carry a single unit.
	SingleStackClasses []string `yaml:"single_stack_classes"`
	// Base classes never listed directly (their presets are listed instead).
	PresetOnlyClasses []string `yaml:"preset_only_classes"`
	// Base classes excluded from the marketplace outright.
	ExcludedClasses []string `yaml:"excluded_classes"`
}

type TraderTuning struct {
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
}

type MinMax struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type MinMaxF struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Defaults mirror the shipped tuning.yaml so a missing file is survivable in
// tests and dev runs.
func Defaults() Tuning {
	return Tuning{
		RunIntervalSeconds: 60,
		Sell: SellTuning{
			BaseChancePercent: 50,
			TimeMinMinutes:    5,
			TimeMaxMinutes:    15,
		},
		Tax: TaxTuning{
			ItemTaxPercent:        5,
			RequirementTaxPercent: 10,
		},
		Dynamic: DynamicTuning{
			ExpiredOfferThreshold: 20,
			OffersPerItem:         MinMax{Min: 1, Max: 3},
			PriceMultiplier:       MinMaxF{Min: 0.9, Max: 1.3},
			StackablePercent:      MinMax{Min: 10, Max: 80},
			NonStackableCount:     MinMax{Min: 1, Max: 2},
			Rating:                MinMaxF{Min: 0.1, Max: 0.95},
			DurationMinutes:       MinMax{Min: 30, Max: 90},
			BarterChancePercent:   10,
			BarterItemCount:       MinMax{Min: 1, Max: 3},
			CurrencyWeights:       map[string]int{"currency_rouble": 75, "currency_dollar": 23, "currency_euro": 2},
			CurrencyRates:         map[string]float64{"currency_rouble": 1, "currency_dollar": 0.0069, "currency_euro": 0.0063},
			SingleStackClasses:    []string{"cls_weapon"},
			PresetOnlyClasses:     []string{"cls_armor", "cls_chest_rig", "cls_headwear"},
			ExcludedClasses:       []string{"cls_stash", "cls_sorting_table", "cls_pocket", "cls_built_in_insert", "cls_currency"},
		},
		Traders: TraderTuning{
			RefreshIntervalSeconds: 3600,
		},
	}
}
