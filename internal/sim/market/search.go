package market

import (
	"sync"

	"github.com/sahilm/fuzzy"

	"fleamarket.gg/internal/sim/catalogs"
)

// The synthetic super-category grouping every weapon mod family. Its children
// are themselves grouping nodes, so category expansion descends one level
// deeper than for every other category.
const modsCategory = "hb_mods"

// FilterSpec is one search request. Active filters are intersected.
type FilterSpec struct {
	// Handbook category node; expands to every template under it.
	HandbookCategory string
	// Anchor template for linked search: offers whose root is usable together
	// with the anchor.
	LinkedSearchTpl string
	// Template the caller wants to pay with: offers requiring it.
	NeededSearchTpl string
	// Template set of an active weapon-build session.
	BuildItemTpls []string
	// Fuzzy match against localized display names.
	Text string
}

// SearchEngine is the stateless query-time filter over offer snapshots, plus
// one piece of derived state: the required-item index, rebuilt by the
// maintenance cycle after every mutation pass.
type SearchEngine struct {
	cats *catalogs.Catalogs
	// Category id -> parent category id, for count roll-up.
	categoryParent map[string]string

	mu sync.RWMutex
	// Template id -> offer ids requiring it as payment.
	needed map[string]map[string]struct{}
}

func NewSearchEngine(cats *catalogs.Catalogs) *SearchEngine {
	parents := make(map[string]string, len(cats.Handbook.Categories))
	for _, c := range cats.Handbook.Categories {
		if c.ParentID != "" {
			parents[c.ID] = c.ParentID
		}
	}
	return &SearchEngine{
		cats:           cats,
		categoryParent: parents,
		needed:         map[string]map[string]struct{}{},
	}
}

// RebuildNeededIndex recomputes the required-item table from a full offer
// snapshot.
func (e *SearchEngine) RebuildNeededIndex(offers []*Offer) {
	idx := map[string]map[string]struct{}{}
	for _, o := range offers {
		for _, r := range o.Requirements {
			set := idx[r.Tpl]
			if set == nil {
				set = map[string]struct{}{}
				idx[r.Tpl] = set
			}
			set[o.ID] = struct{}{}
		}
	}
	e.mu.Lock()
	e.needed = idx
	e.mu.Unlock()
}

// Filter returns the offers matching spec. Locked offers never match. The
// input slice is not modified.
func (e *SearchEngine) Filter(offers []*Offer, spec FilterSpec) []*Offer {
	tplSet := e.allowedTemplates(spec)

	var neededIDs map[string]struct{}
	if spec.NeededSearchTpl != "" {
		e.mu.RLock()
		neededIDs = e.needed[spec.NeededSearchTpl]
		e.mu.RUnlock()
	}

	out := make([]*Offer, 0, len(offers))
	for _, o := range offers {
		if o.Locked {
			continue
		}
		if tplSet != nil {
			if _, ok := tplSet[o.Items[0].Tpl]; !ok {
				continue
			}
		}
		if spec.NeededSearchTpl != "" {
			if _, ok := neededIDs[o.ID]; !ok {
				continue
			}
		}
		out = append(out, o)
	}

	if spec.Text != "" {
		out = e.textFilter(out, spec.Text)
	}
	return out
}

// allowedTemplates intersects every active template-producing filter. A nil
// result means no template filter is active.
func (e *SearchEngine) allowedTemplates(spec FilterSpec) map[string]struct{} {
	var sets []map[string]struct{}

	if len(spec.BuildItemTpls) > 0 {
		set := make(map[string]struct{}, len(spec.BuildItemTpls))
		for _, tpl := range spec.BuildItemTpls {
			set[tpl] = struct{}{}
		}
		sets = append(sets, set)
	}
	if spec.LinkedSearchTpl != "" {
		sets = append(sets, e.linkedTemplates(spec.LinkedSearchTpl))
	}
	if spec.HandbookCategory != "" {
		sets = append(sets, e.TemplatesUnderCategory(spec.HandbookCategory))
	}

	if len(sets) == 0 {
		return nil
	}
	out := sets[0]
	for _, s := range sets[1:] {
		next := map[string]struct{}{}
		for tpl := range out {
			if _, ok := s[tpl]; ok {
				next[tpl] = struct{}{}
			}
		}
		out = next
	}
	return out
}

// linkedTemplates is the bidirectional link closure around the anchor: every
// template the anchor lists as usable, plus every template listing the anchor.
func (e *SearchEngine) linkedTemplates(anchor string) map[string]struct{} {
	out := map[string]struct{}{}
	if def, ok := e.cats.GetItem(anchor); ok {
		for _, tpl := range def.Props.LinkedItems {
			out[tpl] = struct{}{}
		}
	}
	for _, tpl := range e.cats.Items.Palette {
		def, ok := e.cats.GetItem(tpl)
		if !ok {
			continue
		}
		for _, linked := range def.Props.LinkedItems {
			if linked == anchor {
				out[tpl] = struct{}{}
				break
			}
		}
	}
	return out
}

// TemplatesUnderCategory expands a handbook category to its template set:
// direct entries plus one level of child categories, except the mods
// super-category which descends through two levels of grouping nodes.
func (e *SearchEngine) TemplatesUnderCategory(category string) map[string]struct{} {
	depth := 1
	if category == modsCategory {
		depth = 2
	}
	out := map[string]struct{}{}
	e.collectCategory(category, depth, out)
	return out
}

func (e *SearchEngine) collectCategory(category string, depth int, out map[string]struct{}) {
	for _, tpl := range e.cats.Handbook.CategoryItems[category] {
		out[tpl] = struct{}{}
	}
	if depth <= 0 {
		return
	}
	for _, child := range e.cats.Handbook.ChildCategories[category] {
		e.collectCategory(child, depth-1, out)
	}
}

// CategoryCounts tallies visible offers per handbook category, rolled up
// through parent categories so grouping nodes carry aggregate counts.
func (e *SearchEngine) CategoryCounts(offers []*Offer) map[string]int {
	counts := map[string]int{}
	for _, o := range offers {
		if o.Locked {
			continue
		}
		cat, ok := e.cats.Handbook.CategoryOf[o.Items[0].Tpl]
		if !ok {
			continue
		}
		for cat != "" {
			counts[cat]++
			cat = e.categoryParent[cat]
		}
	}
	return counts
}

// textFilter keeps offers whose root display name fuzzy-matches pattern,
// preserving the fuzzy ranking order.
func (e *SearchEngine) textFilter(offers []*Offer, pattern string) []*Offer {
	names := make([]string, len(offers))
	for i, o := range offers {
		name, ok := e.cats.DisplayName(o.Items[0].Tpl)
		if !ok {
			name = o.Items[0].Tpl
		}
		names[i] = name
	}
	matches := fuzzy.Find(pattern, names)
	out := make([]*Offer, 0, len(matches))
	for _, m := range matches {
		out = append(out, offers[m.Index])
	}
	return out
}

// MergeStacks coalesces root-level duplicate stacks of one listing into a
// single item whose count is the sum. The first occurrence survives and keeps
// its pre-merge count for display. Non-root items pass through untouched.
func MergeStacks(items []OfferItem) []OfferItem {
	out := make([]OfferItem, 0, len(items))
	byTpl := map[string]int{}
	for _, it := range items {
		if it.ParentID != "" {
			out = append(out, it)
			continue
		}
		count := 1
		if it.Upd != nil && it.Upd.StackObjectsCount > 0 {
			count = it.Upd.StackObjectsCount
		}
		if idx, ok := byTpl[it.Tpl]; ok {
			merged := &out[idx]
			merged.Upd.StackObjectsCount += count
			continue
		}
		cp := it
		upd := ItemUpd{StackObjectsCount: count, OriginalStackObjectsCount: count}
		if it.Upd != nil {
			upd = *it.Upd
			upd.StackObjectsCount = count
			upd.OriginalStackObjectsCount = count
		}
		cp.Upd = &upd
		byTpl[it.Tpl] = len(out)
		out = append(out, cp)
	}
	return out
}
