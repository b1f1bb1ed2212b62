package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Catalogs is the static content universe the marketplace reads. It stands in
// for the full content database; everything here is immutable after Load.
type Catalogs struct {
	Items    ItemCatalog
	Presets  PresetCatalog
	Handbook HandbookCatalog
	Prices   PriceTable
	Locales  LocaleCatalog
	Traders  TraderCatalog
	Events   EventCatalog
}

type ItemCatalog struct {
	Palette    []string
	Defs       map[string]ItemDef
	DefsDigest string
}

type ItemDef struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Parent string    `json:"parent,omitempty"`
	Type   string    `json:"type"` // "Item" or "Node"
	Props  ItemProps `json:"props"`
}

type ItemProps struct {
	StackMaxSize         int      `json:"stack_max_size,omitempty"`
	CanSellOnFlea        bool     `json:"can_sell_on_flea,omitempty"`
	QuestItem            bool     `json:"quest_item,omitempty"`
	Seasonal             bool     `json:"seasonal,omitempty"`
	ArmorClass           int      `json:"armor_class,omitempty"`
	RepairCost           float64  `json:"repair_cost,omitempty"`
	MaximumNumberOfUsage int      `json:"maximum_number_of_usage,omitempty"`
	MaxResource          float64  `json:"max_resource,omitempty"`
	MaxHpResource        float64  `json:"max_hp_resource,omitempty"`
	CommissionModifier   *float64 `json:"commission_modifier,omitempty"`
	// Template ids usable together with this item (mounts, ammo, ...).
	LinkedItems []string `json:"linked_items,omitempty"`
}

type PresetCatalog struct {
	ByID   map[string]PresetDef
	Digest string
}

type PresetDef struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Root    string       `json:"root"` // template id of items[0]
	Default bool         `json:"default,omitempty"`
	Items   []PresetItem `json:"items"`
}

type PresetItem struct {
	ID       string `json:"id"`
	Tpl      string `json:"tpl"`
	ParentID string `json:"parent_id,omitempty"`
	SlotID   string `json:"slot_id,omitempty"`
}

type HandbookCatalog struct {
	Categories []HandbookCategory
	Entries    []HandbookEntry
	Digest     string

	// Derived indexes.
	ChildCategories map[string][]string // category -> child categories
	CategoryItems   map[string][]string // category -> template ids directly under it
	CategoryOf      map[string]string   // template id -> category
}

type HandbookCategory struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
}

type HandbookEntry struct {
	ID       string `json:"id"` // template id
	ParentID string `json:"parent_id"`
}

type PriceTable struct {
	ByTpl  map[string]float64
	Digest string
}

type LocaleCatalog struct {
	Locale string
	Names  map[string]string
	Digest string
}

type TraderCatalog struct {
	ByID   map[string]TraderDef
	Digest string
}

type TraderDef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	// Priced through its own vendor screen, never listed on the marketplace.
	MarketExcluded bool `json:"market_excluded,omitempty"`
	// Keeps its stock fresh itself; the periodic refresh skips it.
	RefreshExcluded bool          `json:"refresh_excluded,omitempty"`
	PriceMultiplier float64       `json:"price_multiplier,omitempty"`
	Stock           []TraderStock `json:"stock"`
}

type TraderStock struct {
	Tpl       string `json:"tpl"`
	Count     int    `json:"count"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

type EventCatalog struct {
	Active        bool     `json:"active"`
	SeasonalItems []string `json:"seasonal_items"`
	Digest        string   `json:"-"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadPresets(filepath.Join(configDir, "presets.json"), &c.Presets); err != nil {
		return nil, err
	}
	if err := loadHandbook(filepath.Join(configDir, "handbook.json"), &c.Handbook); err != nil {
		return nil, err
	}
	if err := loadPrices(filepath.Join(configDir, "prices.json"), &c.Prices); err != nil {
		return nil, err
	}
	if err := loadLocales(filepath.Join(configDir, "locales.json"), &c.Locales); err != nil {
		return nil, err
	}
	if err := loadTraders(filepath.Join(configDir, "traders.json"), &c.Traders); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events.json"), &c.Events); err != nil {
		return nil, err
	}

	return &c, nil
}

// GetItem reports whether a template exists and returns it.
func (c *Catalogs) GetItem(id string) (ItemDef, bool) {
	d, ok := c.Items.Defs[id]
	return d, ok
}

// IsOfBaseClass walks the parent chain of tpl looking for any of classes.
func (c *Catalogs) IsOfBaseClass(tpl string, classes ...string) bool {
	seen := 0
	for cur := tpl; cur != "" && seen < 32; seen++ {
		d, ok := c.Items.Defs[cur]
		if !ok {
			return false
		}
		for _, cl := range classes {
			if d.Parent == cl || d.ID == cl {
				return true
			}
		}
		cur = d.Parent
	}
	return false
}

// IsValidSellableItem is the item-validity predicate used by the assortment
// builder: a terminal template, flagged sellable, not quest-bound, and not
// under any excluded base class.
func (c *Catalogs) IsValidSellableItem(tpl string, excludedClasses []string) bool {
	d, ok := c.Items.Defs[tpl]
	if !ok || d.Type != "Item" {
		return false
	}
	if !d.Props.CanSellOnFlea || d.Props.QuestItem {
		return false
	}
	if len(excludedClasses) > 0 && c.IsOfBaseClass(tpl, excludedClasses...) {
		return false
	}
	return true
}

// DisplayName returns the localized name for a template, or ok=false when no
// localization exists.
func (c *Catalogs) DisplayName(tpl string) (string, bool) {
	n, ok := c.Locales.Names[tpl]
	return n, ok
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadPresets(path string, out *PresetCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PresetDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("presets.json: %w", err)
	}
	out.ByID = map[string]PresetDef{}
	for _, p := range defs {
		if p.ID == "" {
			return fmt.Errorf("presets.json: empty id")
		}
		if len(p.Items) == 0 || p.Items[0].Tpl != p.Root {
			return fmt.Errorf("presets.json: %s: items[0] must be the root template", p.ID)
		}
		out.ByID[p.ID] = p
	}
	return nil
}

func loadHandbook(path string, out *HandbookCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var doc struct {
		Categories []HandbookCategory `json:"categories"`
		Items      []HandbookEntry    `json:"items"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("handbook.json: %w", err)
	}
	out.Categories = doc.Categories
	out.Entries = doc.Items

	out.ChildCategories = map[string][]string{}
	out.CategoryItems = map[string][]string{}
	out.CategoryOf = map[string]string{}
	for _, cat := range doc.Categories {
		if cat.ParentID != "" {
			out.ChildCategories[cat.ParentID] = append(out.ChildCategories[cat.ParentID], cat.ID)
		}
	}
	for _, e := range doc.Items {
		out.CategoryItems[e.ParentID] = append(out.CategoryItems[e.ParentID], e.ID)
		out.CategoryOf[e.ID] = e.ParentID
	}
	return nil
}

func loadPrices(path string, out *PriceTable) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.ByTpl); err != nil {
		return fmt.Errorf("prices.json: %w", err)
	}
	return nil
}

func loadLocales(path string, out *LocaleCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var doc struct {
		Locale string            `json:"locale"`
		Names  map[string]string `json:"names"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("locales.json: %w", err)
	}
	out.Locale = doc.Locale
	out.Names = doc.Names
	return nil
}

func loadTraders(path string, out *TraderCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []TraderDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("traders.json: %w", err)
	}
	out.ByID = map[string]TraderDef{}
	for _, t := range defs {
		if t.ID == "" {
			return fmt.Errorf("traders.json: empty id")
		}
		out.ByID[t.ID] = t
	}
	return nil
}

func loadEvents(path string, out *EventCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// Seasonal events are optional content.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("events.json: %w", err)
	}
	return nil
}
