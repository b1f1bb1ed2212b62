package market

import "sync"

// OfferStore is the authoritative perishable collection of offers. Mutation
// happens under an exclusive lock held only for the structural change; query
// paths get a snapshot slice and never see live mutable offer references.
//
// Unknown ids are routine under expiry races, so lookups signal absence
// instead of failing.
type OfferStore struct {
	mu      sync.RWMutex
	offers  map[string]*Offer
	byOwner map[string]map[string]struct{}
	// Owner id -> unix time of the last refresh batch for that owner.
	refreshedAt map[string]int64
}

func NewOfferStore() *OfferStore {
	return &OfferStore{
		offers:      map[string]*Offer{},
		byOwner:     map[string]map[string]struct{}{},
		refreshedAt: map[string]int64{},
	}
}

func (s *OfferStore) Insert(o *Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(o)
}

// InsertBatch inserts a generated batch and stamps the owner's refresh time.
func (s *OfferStore) InsertBatch(owner string, now int64, offers []*Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range offers {
		s.insertLocked(o)
	}
	if owner != "" {
		s.refreshedAt[owner] = now
	}
}

func (s *OfferStore) insertLocked(o *Offer) {
	s.offers[o.ID] = o
	owner := o.User.ID
	set := s.byOwner[owner]
	if set == nil {
		set = map[string]struct{}{}
		s.byOwner[owner] = set
	}
	set[o.ID] = struct{}{}
}

func (s *OfferStore) deleteLocked(o *Offer) {
	delete(s.offers, o.ID)
	if set := s.byOwner[o.User.ID]; set != nil {
		delete(set, o.ID)
		if len(set) == 0 {
			delete(s.byOwner, o.User.ID)
		}
	}
}

// Get returns a detached copy of the offer.
func (s *OfferStore) Get(id string) (*Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, false
	}
	return cloneOffer(o), true
}

func (s *OfferStore) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.offers[id]
	return ok
}

func (s *OfferStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offers)
}

// All returns a snapshot of every live offer, detached from store mutation.
func (s *OfferStore) All() []*Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Offer, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, cloneOffer(o))
	}
	return out
}

// LiveRootTpls returns the set of root template ids currently represented by
// offers of the given owner kind.
func (s *OfferStore) LiveRootTpls(kind OwnerKind) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]struct{}{}
	for _, o := range s.offers {
		if o.User.Kind == kind {
			out[o.Items[0].Tpl] = struct{}{}
		}
	}
	return out
}

// LiveAssortIDs returns the set of assortment ids currently represented by
// offers of the given owner kind. Presets and their base template are distinct
// entries here.
func (s *OfferStore) LiveAssortIDs(kind OwnerKind) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]struct{}{}
	for _, o := range s.offers {
		if o.User.Kind == kind && o.AssortID != "" {
			out[o.AssortID] = struct{}{}
		}
	}
	return out
}

// Hide marks an offer locked: invisible to search, not yet purged.
func (s *OfferStore) Hide(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return false
	}
	o.Locked = true
	return true
}

// RemoveStack decrements the root stack by amount and deletes the offer when
// stock reaches zero. The bounds check runs under the same lock as the
// decrement, so two buyers racing on the last units cannot jointly take more
// than the stack holds. Unlimited trader stock is never decremented.
func (s *OfferStore) RemoveStack(id string, amount int) (remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, exists := s.offers[id]
	if !exists {
		return 0, ErrOfferNotFound
	}
	root := o.RootItem()
	if root.Upd != nil && root.Upd.UnlimitedCount {
		return root.Upd.StackObjectsCount, nil
	}
	if root.Upd == nil {
		root.Upd = &ItemUpd{StackObjectsCount: 1}
	}
	if amount > root.Upd.StackObjectsCount {
		return root.Upd.StackObjectsCount, ErrStackTooSmall
	}
	root.Upd.StackObjectsCount -= amount
	o.ItemsSold += amount
	if root.Upd.StackObjectsCount <= 0 {
		s.deleteLocked(o)
		return 0, nil
	}
	return root.Upd.StackObjectsCount, nil
}

// ExpireStale removes every offer whose end timestamp has passed, returning
// the removed offers so callers can hand unsold goods back to sellers.
func (s *OfferStore) ExpireStale(now int64) []*Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []*Offer
	for _, o := range s.offers {
		if o.EndTime <= now {
			removed = append(removed, o)
		}
	}
	for _, o := range removed {
		s.deleteLocked(o)
	}
	return removed
}

// RemoveOwner drops every live offer of one owner (trader refresh discards
// the previous batch before regenerating).
func (s *OfferStore) RemoveOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.byOwner[owner]
	n := len(set)
	for id := range set {
		delete(s.offers, id)
	}
	delete(s.byOwner, owner)
	return n
}

// OwnerNeedsRefresh reports whether an owner has no live offers or its
// refresh interval has elapsed.
func (s *OfferStore) OwnerNeedsRefresh(owner string, now, intervalSeconds int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	live := 0
	for id := range s.byOwner[owner] {
		if o := s.offers[id]; o != nil && o.EndTime > now {
			live++
		}
	}
	if live == 0 {
		return true
	}
	last, ok := s.refreshedAt[owner]
	if !ok {
		return true
	}
	return now >= last+intervalSeconds
}

// SaleRecord is one completed (simulated or real) sale, emitted for the
// audit trail and the sale-history index.
type SaleRecord struct {
	OfferID   string `json:"offer_id"`
	Tpl       string `json:"tpl"`
	Amount    int    `json:"amount"`
	Price     int    `json:"price"`
	Tax       int    `json:"tax,omitempty"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer,omitempty"`
	SoldAt    int64  `json:"sold_at"`
	Simulated bool   `json:"simulated,omitempty"`
}

// ConsumeDueSales applies every scheduled sale event whose timestamp has
// passed: stock is decremented, exhausted offers are deleted.
func (s *OfferStore) ConsumeDueSales(now int64) []SaleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []SaleRecord
	var exhausted []*Offer
	for _, o := range s.offers {
		if len(o.SellResults) == 0 {
			continue
		}
		i := 0
		for ; i < len(o.SellResults); i++ {
			ev := o.SellResults[i]
			if ev.SellTime > now {
				break
			}
			root := o.RootItem()
			if root.Upd == nil {
				root.Upd = &ItemUpd{StackObjectsCount: 1}
			}
			amount := ev.Amount
			if amount > root.Upd.StackObjectsCount {
				amount = root.Upd.StackObjectsCount
			}
			if amount <= 0 {
				continue
			}
			root.Upd.StackObjectsCount -= amount
			o.ItemsSold += amount
			records = append(records, SaleRecord{
				OfferID:   o.ID,
				Tpl:       root.Tpl,
				Amount:    amount,
				Price:     o.RequirementsCost * amount,
				Seller:    o.User.ID,
				SoldAt:    ev.SellTime,
				Simulated: true,
			})
			if root.Upd.StackObjectsCount <= 0 {
				exhausted = append(exhausted, o)
				i++
				break
			}
		}
		o.SellResults = o.SellResults[i:]
	}
	for _, o := range exhausted {
		s.deleteLocked(o)
	}
	return records
}

// cloneOffer detaches an offer from store mutation: the struct, the item
// slice, and each item's upd are copied. Facet pointers are shared; the
// maintenance loop never mutates facets after insert.
func cloneOffer(o *Offer) *Offer {
	cp := *o
	cp.Items = make([]OfferItem, len(o.Items))
	copy(cp.Items, o.Items)
	for i := range cp.Items {
		if cp.Items[i].Upd != nil {
			upd := *cp.Items[i].Upd
			cp.Items[i].Upd = &upd
		}
	}
	if len(o.Requirements) > 0 {
		cp.Requirements = make([]Requirement, len(o.Requirements))
		copy(cp.Requirements, o.Requirements)
	}
	if len(o.SellResults) > 0 {
		cp.SellResults = make([]SaleEvent, len(o.SellResults))
		copy(cp.SellResults, o.SellResults)
	}
	return &cp
}
