package market

import (
	"sort"
	"sync"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

// Seasonal is the seasonal-event collaborator: when no event is active its
// item set is excluded from the sellable universe.
type Seasonal interface {
	Active() bool
	InactiveItemIds() map[string]struct{}
}

// StaticSeasonal adapts the events catalog to the Seasonal contract.
type StaticSeasonal struct {
	Events catalogs.EventCatalog
}

func (s StaticSeasonal) Active() bool { return s.Events.Active }

func (s StaticSeasonal) InactiveItemIds() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Events.SeasonalItems))
	if s.Events.Active {
		return out
	}
	for _, id := range s.Events.SeasonalItems {
		out[id] = struct{}{}
	}
	return out
}

// AssortEntry is one sellable unit: a template id plus the synthetic id
// offers are keyed by. For presets the synthetic id is the preset id so
// recipes and links referencing the preset resolve.
type AssortEntry struct {
	Tpl         string
	SyntheticID string
	Preset      bool
}

// AssortBuilder produces the de-duplicated universe of sellable identifiers.
// The result is built once and shared read-only; Reset forces a rebuild
// (e.g. after a seasonal event toggles).
type AssortBuilder struct {
	cats     *catalogs.Catalogs
	cfg      tuning.DynamicTuning
	seasonal Seasonal

	mu     sync.Mutex
	cached []AssortEntry
}

func NewAssortBuilder(cats *catalogs.Catalogs, cfg tuning.DynamicTuning, seasonal Seasonal) *AssortBuilder {
	return &AssortBuilder{cats: cats, cfg: cfg, seasonal: seasonal}
}

func (b *AssortBuilder) Build() []AssortEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached != nil {
		return b.cached
	}
	b.cached = b.build()
	return b.cached
}

func (b *AssortBuilder) Reset() {
	b.mu.Lock()
	b.cached = nil
	b.mu.Unlock()
}

func (b *AssortBuilder) build() []AssortEntry {
	inactive := b.seasonal.InactiveItemIds()
	seen := map[string]struct{}{}
	var out []AssortEntry

	for _, tpl := range b.cats.Items.Palette {
		if !b.cats.IsValidSellableItem(tpl, b.cfg.ExcludedClasses) {
			continue
		}
		// Preset-only classes surface through their presets instead.
		if len(b.cfg.PresetOnlyClasses) > 0 && b.cats.IsOfBaseClass(tpl, b.cfg.PresetOnlyClasses...) {
			continue
		}
		if _, off := inactive[tpl]; off {
			continue
		}
		if _, dup := seen[tpl]; dup {
			continue
		}
		seen[tpl] = struct{}{}
		out = append(out, AssortEntry{Tpl: tpl, SyntheticID: tpl})
	}

	presetIDs := make([]string, 0, len(b.cats.Presets.ByID))
	for id := range b.cats.Presets.ByID {
		presetIDs = append(presetIDs, id)
	}
	sort.Strings(presetIDs)
	for _, id := range presetIDs {
		p := b.cats.Presets.ByID[id]
		if b.cfg.DefaultPresetsOnly && !p.Default {
			continue
		}
		if _, off := inactive[p.Root]; off {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, AssortEntry{Tpl: p.Root, SyntheticID: p.ID, Preset: true})
	}

	return out
}
