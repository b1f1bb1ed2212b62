package market

import (
	"testing"
)

func hasTpl(set map[string]struct{}, tpls ...string) bool {
	for _, tpl := range tpls {
		if _, ok := set[tpl]; !ok {
			return false
		}
	}
	return true
}

func TestTemplatesUnderCategory(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))

	gear := e.TemplatesUnderCategory("hb_gear")
	if !hasTpl(gear, "armor_trooper", "helmet_kolpak", "rig_scout") || len(gear) != 3 {
		t.Fatalf("gear expansion %v", gear)
	}

	// The mods tree nests grouping nodes two deep; the super-category descends
	// through both.
	mods := e.TemplatesUnderCategory("hb_mods")
	if !hasTpl(mods, "mod_suppressor", "mod_scope_x4") || len(mods) != 2 {
		t.Fatalf("mods expansion %v", mods)
	}

	// Every other category stops one grouping level down, so the root category
	// cannot see the deeply nested mods.
	root := e.TemplatesUnderCategory("hb_root")
	if hasTpl(root, "mod_suppressor") {
		t.Fatal("root expansion descended too deep")
	}
	if !hasTpl(root, "weapon_mk2", "ammo_545_bp", "key_factory") {
		t.Fatalf("root expansion %v", root)
	}
}

func TestFilterByCategoryExcludesLocked(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	visible := simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 10, 1000)
	locked := simpleOffer("o2", "ammo_545_bp", OwnerSynthetic, "b", 10, 1000)
	locked.Locked = true

	got := e.Filter([]*Offer{visible, locked}, FilterSpec{HandbookCategory: "hb_ammo"})
	if len(got) != 1 || got[0].ID != "o1" {
		t.Fatalf("filter returned %d offers", len(got))
	}
}

func TestLinkedSearchIsBidirectional(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	offers := []*Offer{
		simpleOffer("gun", "weapon_mk2", OwnerSynthetic, "a", 1, 1000),
		simpleOffer("sup", "mod_suppressor", OwnerSynthetic, "b", 1, 1000),
		simpleOffer("ammo", "ammo_545_bp", OwnerSynthetic, "c", 30, 1000),
		simpleOffer("meds", "medkit_ifak", OwnerSynthetic, "d", 1, 1000),
	}

	// Forward links from the anchor's template; the anchor itself is not in
	// its own closure.
	got := e.Filter(offers, FilterSpec{LinkedSearchTpl: "weapon_mk2"})
	if len(got) != 2 || !hasTpl(map[string]struct{}{got[0].Items[0].Tpl: {}, got[1].Items[0].Tpl: {}}, "mod_suppressor", "ammo_545_bp") {
		t.Fatalf("anchor weapon: %v", ids(got))
	}

	// The ammo template lists nothing, but the weapon lists it.
	got = e.Filter(offers, FilterSpec{LinkedSearchTpl: "ammo_545_bp"})
	if len(got) != 1 || got[0].ID != "gun" {
		t.Fatalf("anchor ammo: %v", ids(got))
	}
}

func TestNeededSearchUsesRebuiltIndex(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	barter := simpleOffer("barter", "weapon_mk2", OwnerSynthetic, "a", 1, 1000)
	barter.Requirements = []Requirement{{Tpl: "barter_bolts", Count: 3}}
	cash := simpleOffer("cash", "weapon_mk2", OwnerSynthetic, "b", 1, 1000)
	offers := []*Offer{barter, cash}

	got := e.Filter(offers, FilterSpec{NeededSearchTpl: "barter_bolts"})
	if len(got) != 0 {
		t.Fatal("needed search matched before the index was built")
	}

	e.RebuildNeededIndex(offers)
	got = e.Filter(offers, FilterSpec{NeededSearchTpl: "barter_bolts"})
	if len(got) != 1 || got[0].ID != "barter" {
		t.Fatalf("needed search returned %v", ids(got))
	}
}

func TestFiltersIntersect(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	offers := []*Offer{
		simpleOffer("gun", "weapon_mk2", OwnerSynthetic, "a", 1, 1000),
		simpleOffer("ammo", "ammo_545_bp", OwnerSynthetic, "b", 30, 1000),
	}

	got := e.Filter(offers, FilterSpec{
		HandbookCategory: "hb_ammo",
		LinkedSearchTpl:  "weapon_mk2",
	})
	if len(got) != 1 || got[0].ID != "ammo" {
		t.Fatalf("intersection returned %v", ids(got))
	}
}

func TestTextSearchFuzzyMatchesDisplayNames(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	offers := []*Offer{
		simpleOffer("gun", "weapon_mk2", OwnerSynthetic, "a", 1, 1000),
		simpleOffer("key", "key_factory", OwnerSynthetic, "b", 1, 1000),
	}

	got := e.Filter(offers, FilterSpec{Text: "carbine"})
	if len(got) != 1 || got[0].ID != "gun" {
		t.Fatalf("text search returned %v", ids(got))
	}
}

func TestBuildSessionFilter(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	offers := []*Offer{
		simpleOffer("sup", "mod_suppressor", OwnerSynthetic, "a", 1, 1000),
		simpleOffer("scope", "mod_scope_x4", OwnerSynthetic, "b", 1, 1000),
		simpleOffer("meds", "medkit_ifak", OwnerSynthetic, "c", 1, 1000),
	}

	got := e.Filter(offers, FilterSpec{BuildItemTpls: []string{"mod_suppressor", "mod_scope_x4"}})
	if len(got) != 2 {
		t.Fatalf("build filter returned %v", ids(got))
	}
}

func TestCategoryCountsRollUp(t *testing.T) {
	e := NewSearchEngine(testCatalogs(t))
	offers := []*Offer{
		simpleOffer("sup", "mod_suppressor", OwnerSynthetic, "a", 1, 1000),
		simpleOffer("ammo", "ammo_545_bp", OwnerSynthetic, "b", 30, 1000),
	}

	counts := e.CategoryCounts(offers)
	for cat, want := range map[string]int{
		"hb_mods_functional": 1,
		"hb_mods_gun":        1,
		"hb_mods":            1,
		"hb_ammo":            1,
		"hb_root":            2,
	} {
		if counts[cat] != want {
			t.Errorf("counts[%s] = %d, want %d", cat, counts[cat], want)
		}
	}
}

func TestMergeStacks(t *testing.T) {
	items := []OfferItem{
		{ID: "r1", Tpl: "ammo_545_bp", Upd: &ItemUpd{StackObjectsCount: 10}},
		{ID: "r2", Tpl: "ammo_545_bp", Upd: &ItemUpd{StackObjectsCount: 5}},
		{ID: "child", Tpl: "mod_suppressor", ParentID: "r1"},
	}

	merged := MergeStacks(items)
	if len(merged) != 2 {
		t.Fatalf("merged to %d items", len(merged))
	}
	root := merged[0]
	if root.Upd.StackObjectsCount != 15 {
		t.Fatalf("merged count %d, want 15", root.Upd.StackObjectsCount)
	}
	if root.Upd.OriginalStackObjectsCount != 10 {
		t.Fatalf("original count %d, want 10", root.Upd.OriginalStackObjectsCount)
	}
	if merged[1].ParentID != "r1" {
		t.Fatal("child item disturbed by merge")
	}
	// Inputs are not mutated.
	if items[0].Upd.StackObjectsCount != 10 {
		t.Fatal("merge mutated its input")
	}
}
