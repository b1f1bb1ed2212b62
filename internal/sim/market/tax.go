package market

import (
	"fmt"
	"math"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

// TaxCalculator computes the commission charged to list or complete a sale.
// It mirrors a fixed external client formula bit-for-bit, quirks included;
// do not "fix" anything here without a matching change on the client side.
type TaxCalculator struct {
	cats *catalogs.Catalogs
	cfg  tuning.TaxTuning
}

func NewTaxCalculator(cats *catalogs.Catalogs, cfg tuning.TaxTuning) *TaxCalculator {
	return &TaxCalculator{cats: cats, cfg: cfg}
}

// CalculateTax returns the rounded commission for listing items at
// requirementsValue. sellerBonusPercent is stored negative upstream, so the
// discount multiplier is 1 + bonus/100.
func (t *TaxCalculator) CalculateTax(items []OfferItem, requirementsValue float64, offerItemCount int, sellInOnePiece bool, sellerBonusPercent float64) (int, error) {
	if requirementsValue == 0 || offerItemCount == 0 {
		return 0, nil
	}

	root := &items[0]
	rootDef, ok := t.cats.GetItem(root.Tpl)
	if !ok {
		return 0, fmt.Errorf("tax: %w: %s", ErrUnknownItem, root.Tpl)
	}

	itemWorth, err := t.itemWorth(items, root, offerItemCount, true)
	if err != nil {
		return 0, err
	}

	requirementsPrice := requirementsValue
	if !sellInOnePiece {
		requirementsPrice *= float64(offerItemCount)
	}

	itemTaxMult := t.cfg.ItemTaxPercent / 100
	requirementTaxMult := t.cfg.RequirementTaxPercent / 100

	itemPriceMult := math.Log10(itemWorth / requirementsPrice)
	requirementPriceMult := math.Log10(requirementsPrice / itemWorth)

	// Whichever side is cheaper than fair value gets its ratio sharpened.
	if requirementsPrice >= itemWorth {
		requirementPriceMult = math.Pow(requirementPriceMult, 1.08)
	} else {
		itemPriceMult = math.Pow(itemPriceMult, 1.08)
	}
	itemPriceMult = math.Pow(4, itemPriceMult)
	requirementPriceMult = math.Pow(4, requirementPriceMult)

	tax := itemWorth*itemTaxMult*itemPriceMult + requirementsPrice*requirementTaxMult*requirementPriceMult
	tax *= 1 + sellerBonusPercent/100

	commission := 1.0
	if rootDef.Props.CommissionModifier != nil {
		commission = *rootDef.Props.CommissionModifier
	}
	return int(math.Round(tax * commission)), nil
}

// itemWorth computes the reference worth of one item times count. For the
// root, the worth of every contained child is folded in first (the offer
// item list is flat, so one pass covers all descendants).
func (t *TaxCalculator) itemWorth(items []OfferItem, item *OfferItem, count int, isRoot bool) (float64, error) {
	def, ok := t.cats.GetItem(item.Tpl)
	if !ok {
		return 0, fmt.Errorf("tax: %w: %s", ErrUnknownItem, item.Tpl)
	}

	worth := t.cats.Prices.ByTpl[item.Tpl]

	if isRoot {
		for i := range items {
			child := &items[i]
			if child.ID == item.ID {
				continue
			}
			childCount := 1
			if child.Upd != nil && child.Upd.StackObjectsCount > 0 {
				childCount = child.Upd.StackObjectsCount
			}
			childWorth, err := t.itemWorth(items, child, childCount, false)
			if err != nil {
				return 0, err
			}
			worth += childWorth
		}
	}

	if upd := item.Upd; upd != nil {
		if upd.Dogtag != nil {
			worth *= float64(upd.Dogtag.Level)
		}
		if upd.Key != nil && def.Props.MaximumNumberOfUsage > 0 {
			maxUsage := float64(def.Props.MaximumNumberOfUsage)
			worth = worth / maxUsage * (maxUsage - float64(upd.Key.NumberOfUsages))
		}
		if upd.Resource != nil && def.Props.MaxResource > 0 {
			worth = worth*0.1 + worth*0.9/def.Props.MaxResource*upd.Resource.Value
		}
		if upd.SideEffect != nil && def.Props.MaxResource > 0 {
			worth = worth*0.1 + worth*0.9/def.Props.MaxResource*upd.SideEffect.Value
		}
		if upd.MedKit != nil && def.Props.MaxHpResource > 0 {
			worth = worth / def.Props.MaxHpResource * upd.MedKit.HpResource
		}
		if upd.FoodDrink != nil {
			// The reference leaves this division unguarded; MaxResource 0
			// propagates exactly as it does there.
			worth = worth / def.Props.MaxResource * upd.FoodDrink.HpPercent
		}
		if upd.Repairable != nil && def.Props.ArmorClass > 0 {
			correction := 0.01 * math.Pow(0.0, upd.Repairable.MaxDurability)
			component := upd.Repairable.Durability/upd.Repairable.MaxDurability - correction
			worth = worth*component - math.Floor(def.Props.RepairCost*(upd.Repairable.MaxDurability-upd.Repairable.Durability))
		}
	}

	return worth * float64(count), nil
}
