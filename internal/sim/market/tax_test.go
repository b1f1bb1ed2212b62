package market

import (
	"errors"
	"testing"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

func taxCatalogs() *catalogs.Catalogs {
	half := 0.5
	return &catalogs.Catalogs{
		Items: catalogs.ItemCatalog{Defs: map[string]catalogs.ItemDef{
			"simple": {ID: "simple", Type: "Item"},
			"child":  {ID: "child", Type: "Item"},
			"keycard": {ID: "keycard", Type: "Item",
				Props: catalogs.ItemProps{MaximumNumberOfUsage: 50}},
			"medkit": {ID: "medkit", Type: "Item",
				Props: catalogs.ItemProps{MaxHpResource: 300}},
			"leaky_tank": {ID: "leaky_tank", Type: "Item",
				Props: catalogs.ItemProps{MaxResource: 0}},
			"dogtag": {ID: "dogtag", Type: "Item"},
			"armor": {ID: "armor", Type: "Item",
				Props: catalogs.ItemProps{ArmorClass: 4, RepairCost: 2}},
			"discounted": {ID: "discounted", Type: "Item",
				Props: catalogs.ItemProps{CommissionModifier: &half}},
		}},
		Prices: catalogs.PriceTable{ByTpl: map[string]float64{
			"simple":     1000,
			"child":      500,
			"keycard":    1000,
			"medkit":     1000,
			"leaky_tank": 1000,
			"dogtag":     1000,
			"armor":      1000,
			"discounted": 1000,
		}},
	}
}

func newTestTax() *TaxCalculator {
	return NewTaxCalculator(taxCatalogs(), tuning.Defaults().Tax)
}

func singleItem(tpl string, upd *ItemUpd) []OfferItem {
	return []OfferItem{{ID: "root", Tpl: tpl, Upd: upd}}
}

func TestTaxZeroShortCircuits(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("simple", nil), 0, 1, false, 0)
	if err != nil || got != 0 {
		t.Fatalf("zero requirements: tax=%d err=%v", got, err)
	}
	got, err = tax.CalculateTax(singleItem("simple", nil), 1000, 0, false, 0)
	if err != nil || got != 0 {
		t.Fatalf("zero count: tax=%d err=%v", got, err)
	}
}

func TestTaxUnknownTemplate(t *testing.T) {
	tax := newTestTax()
	_, err := tax.CalculateTax(singleItem("ghost", nil), 1000, 1, false, 0)
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("err = %v", err)
	}
}

// Worth and ask both 1000: every ratio term collapses to 1 and the result is
// just the two flat percentages.
func TestTaxSymmetricFixture(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("simple", nil), 1000, 1, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 150 {
		t.Fatalf("tax = %d, want 150", got)
	}
}

func TestTaxStackScalesBothSides(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("simple", &ItemUpd{StackObjectsCount: 10}), 1000, 10, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1500 {
		t.Fatalf("tax = %d, want 1500", got)
	}
}

// Selling a 10-stack as one piece keeps the ask at face value while the worth
// covers all ten units: 10000*0.05*4 + 1000*0.10*0.25 = 2025.
func TestTaxOnePieceAsymmetry(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("simple", &ItemUpd{StackObjectsCount: 10}), 1000, 10, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2025 {
		t.Fatalf("tax = %d, want 2025", got)
	}
}

func TestTaxSellerBonusDiscount(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("simple", nil), 1000, 1, false, -50)
	if err != nil {
		t.Fatal(err)
	}
	if got != 75 {
		t.Fatalf("tax = %d, want 75", got)
	}
}

func TestTaxCommissionModifier(t *testing.T) {
	tax := newTestTax()
	got, err := tax.CalculateTax(singleItem("discounted", nil), 1000, 1, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 75 {
		t.Fatalf("tax = %d, want 75", got)
	}
}

func TestTaxMonotonicInAskPrice(t *testing.T) {
	tax := newTestTax()
	low, err := tax.CalculateTax(singleItem("simple", nil), 1000, 1, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	high, err := tax.CalculateTax(singleItem("simple", nil), 2000, 1, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if high <= low {
		t.Fatalf("tax not monotonic: %d at 1000, %d at 2000", low, high)
	}
}

func TestTaxChildWorthFoldsIntoRoot(t *testing.T) {
	tax := newTestTax()
	items := []OfferItem{
		{ID: "root", Tpl: "simple"},
		{ID: "c1", Tpl: "child", ParentID: "root"},
	}
	// Worth 1500 against ask 1500 is symmetric again.
	got, err := tax.CalculateTax(items, 1500, 1, false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 225 {
		t.Fatalf("tax = %d, want 225", got)
	}
}

func TestTaxFacetAdjustments(t *testing.T) {
	tax := newTestTax()
	cases := []struct {
		name string
		tpl  string
		upd  *ItemUpd
		ask  float64
		want int
	}{
		// 1000/50 * (50-10) = 800 worth.
		{"key usage", "keycard", &ItemUpd{Key: &KeyFacet{NumberOfUsages: 10}}, 800, 120},
		// 1000/300 * 150 = 500 worth.
		{"medkit hp", "medkit", &ItemUpd{MedKit: &MedKitFacet{HpResource: 150}}, 500, 75},
		// MaxResource 0 on the template: the resource adjustment is skipped.
		{"resource guard", "leaky_tank", &ItemUpd{Resource: &ResourceFacet{Value: 30}}, 1000, 150},
		// Level 3 tag is worth triple.
		{"dogtag level", "dogtag", &ItemUpd{Dogtag: &DogtagFacet{Level: 3}}, 3000, 450},
		// 1000*(40/50) - floor(2*10) = 780 worth.
		{"repairable wear", "armor", &ItemUpd{Repairable: &RepairableFacet{Durability: 40, MaxDurability: 50}}, 780, 117},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tax.CalculateTax(singleItem(tc.tpl, tc.upd), tc.ask, 1, false, 0)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("tax = %d, want %d", got, tc.want)
			}
		})
	}
}
