package market

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

// SaleSink receives every completed sale, simulated or committed.
type SaleSink interface {
	RecordSale(SaleRecord)
}

// AuditSink receives marketplace lifecycle events.
type AuditSink interface {
	Event(kind string, fields map[string]any)
}

type nopSaleSink struct{}

func (nopSaleSink) RecordSale(SaleRecord) {}

type nopAuditSink struct{}

func (nopAuditSink) Event(string, map[string]any) {}

// Metrics are cheap atomic counters sampled by the metrics endpoint without
// touching any market lock.
type Metrics struct {
	OffersLive      atomic.Int64
	OffersGenerated atomic.Int64
	OffersExpired   atomic.Int64
	SalesSimulated  atomic.Int64
	SalesCommitted  atomic.Int64
	TaxQuotes       atomic.Int64
	Cycles          atomic.Int64
	LastCycleUnix   atomic.Int64
}

// SortSpec selects the ordering of a search result.
type SortSpec struct {
	Key  SortKey
	Desc bool
}

// SearchResult is one page of offers plus the full-result category tallies.
type SearchResult struct {
	Offers     []*Offer       `json:"offers"`
	Total      int            `json:"total"`
	Categories map[string]int `json:"categories"`
}

// OfferDraft is a prospective listing submitted for a tax quote.
type OfferDraft struct {
	Items              []OfferItem `json:"items"`
	RequirementsValue  float64     `json:"requirementsValue"`
	OfferItemCount     int         `json:"offerItemCount"`
	SellInOnePiece     bool        `json:"sellInOnePiece"`
	SellerBonusPercent float64     `json:"sellerBonusPercent"`
}

// Market is the marketplace controller: it owns the maintenance cycle and is
// the only writer of the offer store. Query methods are safe to call
// concurrently with the cycle; they operate on detached snapshots.
type Market struct {
	cats *catalogs.Catalogs
	cfg  tuning.Tuning
	log  *log.Logger

	store  *OfferStore
	assort *AssortBuilder
	gen    *OfferGenerator
	tax    *TaxCalculator
	sorter *Sorter
	search *SearchEngine

	seed    int64
	sampler *WeightedSampler

	sales   SaleSink
	audit   AuditSink
	metrics *Metrics

	// Expired-offer accounting since the last threshold regeneration. Only
	// touched by the maintenance cycle.
	expiredCount int
	expiredTpls  map[string]struct{}

	quoteMu sync.Mutex
	quotes  map[string]int

	now func() int64
}

type Options struct {
	Seed  int64
	Sales SaleSink
	Audit AuditSink
	// Clock override for tests. Defaults to wall-clock unix seconds.
	Now func() int64
}

func New(cats *catalogs.Catalogs, cfg tuning.Tuning, logger *log.Logger, opts Options) *Market {
	if opts.Sales == nil {
		opts.Sales = nopSaleSink{}
	}
	if opts.Audit == nil {
		opts.Audit = nopAuditSink{}
	}
	if opts.Now == nil {
		opts.Now = func() int64 { return time.Now().Unix() }
	}

	sampler := NewWeightedSampler(rand.New(rand.NewSource(opts.Seed)))
	sim := NewSaleSimulator(cfg.Sell, sampler, logger)
	var nextIntID atomic.Int64

	m := &Market{
		cats:        cats,
		cfg:         cfg,
		log:         logger,
		store:       NewOfferStore(),
		assort:      NewAssortBuilder(cats, cfg.Dynamic, StaticSeasonal{Events: cats.Events}),
		tax:         NewTaxCalculator(cats, cfg.Tax),
		sorter:      NewSorter(cats),
		search:      NewSearchEngine(cats),
		seed:        opts.Seed,
		sampler:     sampler,
		sales:       opts.Sales,
		audit:       opts.Audit,
		metrics:     &Metrics{},
		expiredTpls: map[string]struct{}{},
		quotes:      map[string]int{},
		now:         opts.Now,
	}
	m.gen = NewOfferGenerator(cats, cfg, sim, &nextIntID, logger)
	return m
}

func (m *Market) Metrics() *Metrics { return m.metrics }

// RunIntervalSeconds exposes the maintenance cadence for session handshakes.
func (m *Market) RunIntervalSeconds() int { return m.cfg.RunIntervalSeconds }

// Bootstrap fills the store from scratch: the full dynamic assortment plus
// every participating trader.
func (m *Market) Bootstrap() {
	now := m.now()
	entries := m.assort.Build()
	live := m.store.LiveAssortIDs(OwnerSynthetic)
	offers := m.gen.GenerateDynamicOffers(m.sampler, now, entries, live, nil)
	m.store.InsertBatch("", now, offers)
	m.metrics.OffersGenerated.Add(int64(len(offers)))

	m.refreshTraders(now, true)
	m.search.RebuildNeededIndex(m.store.All())
	m.metrics.OffersLive.Store(int64(m.store.Count()))
	m.log.Printf("market: bootstrap complete, %d offers live", m.store.Count())
}

// Run drives the maintenance cycle until ctx is cancelled.
func (m *Market) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.RunIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.log.Printf("market: maintenance loop started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Printf("market: maintenance loop stopped")
			return
		case <-ticker.C:
			m.Update()
		}
	}
}

// Update runs one maintenance cycle: apply due simulated sales, expire stale
// offers, refresh traders, regenerate expired dynamic stock past the
// threshold, then rebuild derived query state.
func (m *Market) Update() {
	now := m.now()

	for _, rec := range m.store.ConsumeDueSales(now) {
		m.sales.RecordSale(rec)
		m.metrics.SalesSimulated.Add(1)
	}

	expired := m.store.ExpireStale(now)
	for _, o := range expired {
		m.audit.Event("offer_expired", map[string]any{
			"offer_id": o.ID,
			"tpl":      o.Items[0].Tpl,
			"owner":    o.User.ID,
			"unsold":   o.StackCount(),
		})
		if o.User.Kind == OwnerSynthetic {
			m.expiredCount++
			m.expiredTpls[o.Items[0].Tpl] = struct{}{}
		}
	}
	m.metrics.OffersExpired.Add(int64(len(expired)))

	m.refreshTraders(now, false)

	if m.expiredCount >= m.cfg.Dynamic.ExpiredOfferThreshold {
		m.regenerateExpired(now)
	}

	m.search.RebuildNeededIndex(m.store.All())

	m.quoteMu.Lock()
	m.quotes = map[string]int{}
	m.quoteMu.Unlock()

	m.metrics.OffersLive.Store(int64(m.store.Count()))
	m.metrics.Cycles.Add(1)
	m.metrics.LastCycleUnix.Store(now)
}

// refreshTraders regenerates every due trader's assortment. Trader generation
// is a pure function of the trader's stock and the price table, so the
// per-trader work fans out in parallel with no draw state shared between
// goroutines.
func (m *Market) refreshTraders(now int64, force bool) {
	interval := int64(m.cfg.Traders.RefreshIntervalSeconds)

	ids := make([]string, 0, len(m.cats.Traders.ByID))
	for id := range m.cats.Traders.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var g errgroup.Group
	var mu sync.Mutex
	batches := map[string][]*Offer{}

	for _, id := range ids {
		trader := m.cats.Traders.ByID[id]
		if trader.MarketExcluded {
			continue
		}
		if !force && trader.RefreshExcluded {
			continue
		}
		if !force && !m.store.OwnerNeedsRefresh(trader.ID, now, interval) {
			continue
		}
		g.Go(func() error {
			offers := m.gen.GenerateTraderOffers(now, trader)
			mu.Lock()
			batches[trader.ID] = offers
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range ids {
		offers, ok := batches[id]
		if !ok {
			continue
		}
		m.store.RemoveOwner(id)
		m.store.InsertBatch(id, now, offers)
		m.metrics.OffersGenerated.Add(int64(len(offers)))
		m.audit.Event("trader_refreshed", map[string]any{
			"trader": id,
			"offers": len(offers),
		})
	}
}

// regenerateExpired bulk-regenerates dynamic offers scoped to the templates
// expired since the last regeneration, then resets the accounting.
func (m *Market) regenerateExpired(now int64) {
	entries := m.assort.Build()
	live := m.store.LiveAssortIDs(OwnerSynthetic)
	smp := NewWeightedSampler(rand.New(rand.NewSource(deriveSeed(m.seed, "regen", now))))
	offers := m.gen.GenerateDynamicOffers(smp, now, entries, live, m.expiredTpls)
	m.store.InsertBatch("", now, offers)
	m.metrics.OffersGenerated.Add(int64(len(offers)))
	m.audit.Event("dynamic_regenerated", map[string]any{
		"templates": len(m.expiredTpls),
		"offers":    len(offers),
	})
	m.expiredCount = 0
	m.expiredTpls = map[string]struct{}{}
}

// deriveSeed folds a label and a value into the base seed so independent
// samplers get uncorrelated, reproducible streams.
func deriveSeed(seed int64, label string, v int64) int64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(seed >> (8 * i))
	}
	h.Write(buf[:])
	h.Write([]byte(label))
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	h.Write(buf[:])
	return int64(h.Sum64())
}

// GetOffer returns a detached copy of one offer.
func (m *Market) GetOffer(id string) (*Offer, error) {
	o, ok := m.store.Get(id)
	if !ok {
		return nil, ErrOfferNotFound
	}
	return o, nil
}

func (m *Market) Exists(id string) bool { return m.store.Exists(id) }

// AllOffers returns a detached snapshot of every live offer.
func (m *Market) AllOffers() []*Offer { return m.store.All() }

// HideOffer locks an offer out of search results without deleting it.
func (m *Market) HideOffer(id string) error {
	if !m.store.Hide(id) {
		return ErrOfferNotFound
	}
	m.audit.Event("offer_hidden", map[string]any{"offer_id": id})
	return nil
}

// RemoveOfferStack removes amount units from an offer's stack.
func (m *Market) RemoveOfferStack(id string, amount int) (int, error) {
	return m.store.RemoveStack(id, amount)
}

// GetItemPrices returns a copy of the reference price table.
func (m *Market) GetItemPrices() map[string]float64 {
	out := make(map[string]float64, len(m.cats.Prices.ByTpl))
	for tpl, p := range m.cats.Prices.ByTpl {
		out[tpl] = p
	}
	return out
}

// Search filters and orders a snapshot of the live pool, returning one page.
// Category tallies always cover the full filtered result, not just the page.
func (m *Market) Search(filter FilterSpec, sortSpec SortSpec, page, limit int) SearchResult {
	snapshot := m.store.All()
	matched := m.search.Filter(snapshot, filter)
	m.sorter.Sort(matched, sortSpec.Key, sortSpec.Desc)

	res := SearchResult{
		Total:      len(matched),
		Categories: m.search.CategoryCounts(matched),
	}

	if limit <= 0 {
		res.Offers = matched
		return res
	}
	start := page * limit
	if start >= len(matched) {
		res.Offers = []*Offer{}
		return res
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	res.Offers = matched[start:end]
	return res
}

// QuoteTax computes the listing commission for a draft and caches it under
// the draft id until it is consumed or the next maintenance cycle.
func (m *Market) QuoteTax(draftID string, draft OfferDraft) (int, error) {
	if len(draft.Items) == 0 {
		return 0, ErrUnknownItem
	}
	tax, err := m.tax.CalculateTax(draft.Items, draft.RequirementsValue,
		draft.OfferItemCount, draft.SellInOnePiece, draft.SellerBonusPercent)
	if err != nil {
		return 0, err
	}
	m.quoteMu.Lock()
	m.quotes[draftID] = tax
	m.quoteMu.Unlock()
	m.metrics.TaxQuotes.Add(1)
	return tax, nil
}

// ConsumeQuote removes and returns a cached tax quote.
func (m *Market) ConsumeQuote(draftID string) (int, error) {
	m.quoteMu.Lock()
	defer m.quoteMu.Unlock()
	tax, ok := m.quotes[draftID]
	if !ok {
		return 0, ErrNoQuote
	}
	delete(m.quotes, draftID)
	return tax, nil
}

// CommitSale executes a buy against a live offer: the stack shrinks by
// amount and a sale record is emitted. One-piece offers must be bought whole.
// When draftID is non-empty it names the tax quote issued for this action;
// the quote is spent by a successful sale, and a stale or unknown draft id
// rejects the buy. The stock bounds check lives inside the store's exclusive
// lock, so concurrent buys on the same offer can never jointly exceed it.
func (m *Market) CommitSale(offerID string, amount int, buyerID, draftID string) (SaleRecord, error) {
	var tax int
	if draftID != "" {
		t, err := m.ConsumeQuote(draftID)
		if err != nil {
			return SaleRecord{}, err
		}
		tax = t
	}
	// A rejected buy must not burn its quote.
	restoreQuote := func() {
		if draftID == "" {
			return
		}
		m.quoteMu.Lock()
		m.quotes[draftID] = tax
		m.quoteMu.Unlock()
	}

	o, ok := m.store.Get(offerID)
	if !ok {
		restoreQuote()
		return SaleRecord{}, ErrOfferNotFound
	}
	if o.SellInOnePiece {
		amount = o.StackCount()
	}
	if amount <= 0 {
		restoreQuote()
		return SaleRecord{}, ErrStackTooSmall
	}
	if _, err := m.store.RemoveStack(offerID, amount); err != nil {
		restoreQuote()
		return SaleRecord{}, err
	}
	price := o.RequirementsCost * amount
	if o.SellInOnePiece {
		// The ask already covers the whole bundle.
		price = o.RequirementsCost
	}
	rec := SaleRecord{
		OfferID: offerID,
		Tpl:     o.RootItem().Tpl,
		Amount:  amount,
		Price:   price,
		Tax:     tax,
		Seller:  o.User.ID,
		Buyer:   buyerID,
		SoldAt:  m.now(),
	}
	m.sales.RecordSale(rec)
	m.metrics.SalesCommitted.Add(1)
	m.audit.Event("sale_committed", map[string]any{
		"offer_id": offerID,
		"tpl":      rec.Tpl,
		"amount":   amount,
		"buyer":    buyerID,
	})
	return rec, nil
}
