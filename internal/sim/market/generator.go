package market

import (
	"log"
	"math"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

var syntheticNames = []string{
	"Kolya", "Dima", "Sanya", "Vova", "Pasha", "Zhenya", "Timur", "Artem",
	"Borya", "Gleb", "Ilya", "Maks", "Nikita", "Roma", "Seva", "Yura",
}

// OfferGenerator synthesizes dynamic player-style offers and trader offer
// batches. It never touches the store itself; callers insert what it returns.
type OfferGenerator struct {
	cats *catalogs.Catalogs
	cfg  tuning.Tuning
	sim  *SaleSimulator
	log  *log.Logger

	nextIntID *atomic.Int64
}

func NewOfferGenerator(cats *catalogs.Catalogs, cfg tuning.Tuning, sim *SaleSimulator, nextIntID *atomic.Int64, logger *log.Logger) *OfferGenerator {
	return &OfferGenerator{cats: cats, cfg: cfg, sim: sim, log: logger, nextIntID: nextIntID}
}

// GenerateDynamicOffers synthesizes offers for every assortment entry not in
// live. When expiredTpls is non-nil, generation is scoped to just those
// templates. One bad entry never aborts the batch.
func (g *OfferGenerator) GenerateDynamicOffers(smp *WeightedSampler, now int64, entries []AssortEntry, live map[string]struct{}, expiredTpls map[string]struct{}) []*Offer {
	var out []*Offer
	for _, e := range entries {
		if expiredTpls != nil {
			if _, hit := expiredTpls[e.Tpl]; !hit {
				continue
			}
		}
		if _, busy := live[e.SyntheticID]; busy {
			continue
		}
		n := smp.IntBetween(g.cfg.Dynamic.OffersPerItem.Min, g.cfg.Dynamic.OffersPerItem.Max)
		for i := 0; i < n; i++ {
			o, err := g.dynamicOffer(smp, now, e)
			if err != nil {
				g.log.Printf("generator: skip %s: %v", e.SyntheticID, err)
				continue
			}
			out = append(out, o)
		}
	}
	return out
}

func (g *OfferGenerator) dynamicOffer(smp *WeightedSampler, now int64, e AssortEntry) (*Offer, error) {
	def, ok := g.cats.GetItem(e.Tpl)
	if !ok {
		return nil, ErrUnknownItem
	}

	items, refPrice := g.offerItems(e)
	if refPrice <= 0 {
		refPrice = 1
	}

	stack := g.stackSize(smp, e, def)
	items[0].Upd = &ItemUpd{StackObjectsCount: stack}

	askPerUnit := refPrice * smp.FloatBetween(g.cfg.Dynamic.PriceMultiplier.Min, g.cfg.Dynamic.PriceMultiplier.Max)
	sellInOnePiece := e.Preset
	if sellInOnePiece {
		// A preset sells as one bundle; the ask covers the whole thing.
		askPerUnit *= float64(stack)
	}

	reqs, reqCost := g.requirements(smp, askPerUnit)

	duration := int64(smp.IntBetween(g.cfg.Dynamic.DurationMinutes.Min, g.cfg.Dynamic.DurationMinutes.Max)) * 60
	endTime := now + duration

	chance := float64(g.cfg.Sell.BaseChancePercent) * (refPrice / askPerUnit)
	if sellInOnePiece {
		chance = float64(g.cfg.Sell.BaseChancePercent) * (refPrice * float64(stack) / askPerUnit)
	}
	if chance > 100 {
		chance = 100
	}

	o := &Offer{
		ID:    uuid.NewString(),
		IntID: g.nextIntID.Add(1),
		User: SellerRef{
			Kind:     OwnerSynthetic,
			ID:       uuid.NewString(),
			Nickname: syntheticNames[smp.IntBetween(0, len(syntheticNames)-1)],
			Rating:   smp.FloatBetween(g.cfg.Dynamic.Rating.Min, g.cfg.Dynamic.Rating.Max),
		},
		AssortID:         e.SyntheticID,
		Root:             items[0].ID,
		Items:            items,
		Requirements:     reqs,
		RequirementsCost: reqCost,
		SummaryCost:      reqCost,
		StartTime:        now,
		EndTime:          endTime,
		SellInOnePiece:   sellInOnePiece,
	}
	o.SellResults = g.sim.Simulate(chance, stack, now, endTime, sellInOnePiece)
	return o, nil
}

// offerItems materializes the item list for an assortment entry with fresh
// ids, and returns the reference price of one unit (preset parts included).
func (g *OfferGenerator) offerItems(e AssortEntry) ([]OfferItem, float64) {
	if !e.Preset {
		return []OfferItem{{ID: uuid.NewString(), Tpl: e.Tpl}}, g.cats.Prices.ByTpl[e.Tpl]
	}

	p := g.cats.Presets.ByID[e.SyntheticID]
	idMap := make(map[string]string, len(p.Items))
	for _, pi := range p.Items {
		idMap[pi.ID] = uuid.NewString()
	}
	items := make([]OfferItem, 0, len(p.Items))
	price := 0.0
	for _, pi := range p.Items {
		items = append(items, OfferItem{
			ID:       idMap[pi.ID],
			Tpl:      pi.Tpl,
			ParentID: idMap[pi.ParentID],
			SlotID:   pi.SlotID,
		})
		price += g.cats.Prices.ByTpl[pi.Tpl]
	}
	return items, price
}

func (g *OfferGenerator) stackSize(smp *WeightedSampler, e AssortEntry, def catalogs.ItemDef) int {
	if e.Preset || g.cats.IsOfBaseClass(e.Tpl, g.cfg.Dynamic.SingleStackClasses...) {
		return 1
	}
	maxStack := def.Props.StackMaxSize
	if maxStack > 1 {
		pct := smp.IntBetween(g.cfg.Dynamic.StackablePercent.Min, g.cfg.Dynamic.StackablePercent.Max)
		stack := int(math.Round(float64(pct) / 100 * float64(maxStack)))
		if stack < 1 {
			stack = 1
		}
		if stack > maxStack {
			stack = maxStack
		}
		return stack
	}
	return smp.IntBetween(g.cfg.Dynamic.NonStackableCount.Min, g.cfg.Dynamic.NonStackableCount.Max)
}

// requirements rolls either a currency ask (weighted currency bias table) or,
// with the configured chance, a barter ask. Returns the requirement list and
// its total reference-currency cost.
func (g *OfferGenerator) requirements(smp *WeightedSampler, askRef float64) ([]Requirement, int) {
	if smp.Chance100(float64(g.cfg.Dynamic.BarterChancePercent)) {
		if reqs, cost := g.barterRequirements(smp, askRef); len(reqs) > 0 {
			return reqs, cost
		}
	}

	currencies := make([]string, 0, len(g.cfg.Dynamic.CurrencyWeights))
	weights := make([]int, 0, len(g.cfg.Dynamic.CurrencyWeights))
	for _, c := range sortedKeys(g.cfg.Dynamic.CurrencyWeights) {
		currencies = append(currencies, c)
		weights = append(weights, g.cfg.Dynamic.CurrencyWeights[c])
	}
	currency := smp.Pick(currencies, weights)
	rate := g.cfg.Dynamic.CurrencyRates[currency]
	if rate <= 0 {
		rate = 1
		currency = "currency_rouble"
	}
	count := int(math.Round(askRef * rate))
	if count < 1 {
		count = 1
	}
	refCost := int(math.Round(float64(count) / rate))
	return []Requirement{{Tpl: currency, Count: count, IsCurrency: true}}, refCost
}

func (g *OfferGenerator) barterRequirements(smp *WeightedSampler, askRef float64) ([]Requirement, int) {
	pool := g.barterPool()
	if len(pool) == 0 {
		return nil, 0
	}
	n := smp.IntBetween(g.cfg.Dynamic.BarterItemCount.Min, g.cfg.Dynamic.BarterItemCount.Max)
	if n > len(pool) {
		n = len(pool)
	}
	share := askRef / float64(n)
	var reqs []Requirement
	cost := 0.0
	for i := 0; i < n; i++ {
		tpl := pool[smp.IntBetween(0, len(pool)-1)]
		price := g.cats.Prices.ByTpl[tpl]
		if price <= 0 {
			continue
		}
		count := int(math.Round(share / price))
		if count < 1 {
			count = 1
		}
		reqs = append(reqs, Requirement{Tpl: tpl, Count: count})
		cost += price * float64(count)
	}
	return reqs, int(math.Round(cost))
}

func (g *OfferGenerator) barterPool() []string {
	var pool []string
	for _, tpl := range g.cats.Items.Palette {
		if !g.cats.IsValidSellableItem(tpl, g.cfg.Dynamic.ExcludedClasses) {
			continue
		}
		if g.cats.IsOfBaseClass(tpl, "cls_currency") {
			continue
		}
		pool = append(pool, tpl)
	}
	return pool
}

// GenerateTraderOffers regenerates one trader's whole assortment from its
// current stock list. Bad stock rows are logged and skipped.
func (g *OfferGenerator) GenerateTraderOffers(now int64, trader catalogs.TraderDef) []*Offer {
	refreshInterval := int64(g.cfg.Traders.RefreshIntervalSeconds)
	priceMult := trader.PriceMultiplier
	if priceMult <= 0 {
		priceMult = 1
	}
	rate := g.cfg.Dynamic.CurrencyRates[trader.Currency]
	if rate <= 0 {
		rate = 1
	}
	endTime := now + refreshInterval
	if trader.RefreshExcluded {
		// Replaced out of band by the trader's own restock path, so the
		// periodic expiry pass must never age these out.
		endTime = now + 365*24*3600
	}

	var out []*Offer
	for _, stock := range trader.Stock {
		def, ok := g.cats.GetItem(stock.Tpl)
		if !ok {
			g.log.Printf("generator: trader %s: unknown template %s", trader.ID, stock.Tpl)
			continue
		}

		ref := g.cats.Prices.ByTpl[stock.Tpl]
		count := int(math.Round(ref * priceMult * rate))
		if count < 1 {
			count = 1
		}

		upd := &ItemUpd{StackObjectsCount: stock.Count}
		if stock.Unlimited {
			// Catalog-type entry: sentinel stack plus an explicit flag, so
			// "very large" is never mistaken for actually infinite.
			upd.StackObjectsCount = 999999
			upd.UnlimitedCount = true
		} else if def.Props.StackMaxSize > 0 && upd.StackObjectsCount > def.Props.StackMaxSize {
			upd.StackObjectsCount = def.Props.StackMaxSize
		}

		rootID := uuid.NewString()
		o := &Offer{
			ID:    uuid.NewString(),
			IntID: g.nextIntID.Add(1),
			User: SellerRef{
				Kind:     OwnerTrader,
				ID:       trader.ID,
				Nickname: trader.Name,
			},
			AssortID:         stock.Tpl,
			Root:             rootID,
			Items:            []OfferItem{{ID: rootID, Tpl: stock.Tpl, Upd: upd}},
			Requirements:     []Requirement{{Tpl: trader.Currency, Count: count, IsCurrency: true}},
			RequirementsCost: int(math.Round(float64(count) / rate)),
			SummaryCost:      int(math.Round(float64(count) / rate)),
			StartTime:        now,
			EndTime:          endTime,
			LoyaltyLevel:     1,
		}
		out = append(out, o)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
