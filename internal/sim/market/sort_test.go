package market

import (
	"testing"
)

func sortFixtures() []*Offer {
	a := simpleOffer("a", "weapon_mk2", OwnerSynthetic, "s1", 1, 5000)
	a.IntID = 3
	a.User.Rating = 0.9
	a.RequirementsCost = 45000

	b := simpleOffer("b", "barter_matches", OwnerSynthetic, "s2", 1, 2000)
	b.IntID = 1
	b.User.Rating = 0.2
	b.RequirementsCost = 2400
	b.Requirements = []Requirement{{Tpl: "barter_bolts", Count: 1}}

	c := simpleOffer("c", "ammo_545_bp", OwnerSynthetic, "s3", 30, 9000)
	c.IntID = 2
	c.User.Rating = 0.5
	c.RequirementsCost = 700

	return []*Offer{a, b, c}
}

func ids(offers []*Offer) []string {
	out := make([]string, len(offers))
	for i, o := range offers {
		out[i] = o.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSortKeys(t *testing.T) {
	sorter := NewSorter(testCatalogs(t))
	cases := []struct {
		name string
		key  SortKey
		want []string
	}{
		{"id", SortByID, []string{"b", "c", "a"}},
		{"price", SortByPrice, []string{"c", "b", "a"}},
		{"rating", SortByRating, []string{"b", "c", "a"}},
		{"expiry", SortByExpiry, []string{"b", "a", "c"}},
		// Barter offers rank after plain currency offers.
		{"barter", SortByBarter, []string{"c", "a", "b"}},
		// "5.45x39mm BP gs" < "barter_matches" (locale fallback) < "MK-2 carbine".
		{"name", SortByName, []string{"c", "b", "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offers := sortFixtures()
			sorter.Sort(offers, tc.key, false)
			if got := ids(offers); !equalIDs(got, tc.want) {
				t.Fatalf("order %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSortDescendingIsExactReverse(t *testing.T) {
	sorter := NewSorter(testCatalogs(t))
	for key := SortByID; key <= SortByExpiry; key++ {
		asc := sortFixtures()
		desc := sortFixtures()
		sorter.Sort(asc, key, false)
		sorter.Sort(desc, key, true)

		for i := range asc {
			if asc[i].ID != desc[len(desc)-1-i].ID {
				t.Fatalf("key %d: descending is not the reverse of ascending: %v vs %v",
					key, ids(asc), ids(desc))
			}
		}
	}
}

func TestSortNameFallsBackToTemplateID(t *testing.T) {
	cats := testCatalogs(t)
	if _, ok := cats.DisplayName("barter_matches"); ok {
		t.Fatal("fixture expectation broken: barter_matches should have no locale entry")
	}
	sorter := NewSorter(cats)
	offers := sortFixtures()
	sorter.Sort(offers, SortByName, false)
	// The unlocalized offer still lands deterministically by its raw id.
	if got := ids(offers); !equalIDs(got, []string{"c", "b", "a"}) {
		t.Fatalf("order %v", got)
	}
}
