package market

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStoreGetReturnsDetachedCopy(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "seller1", 10, 1000))

	got, ok := s.Get("o1")
	if !ok {
		t.Fatal("offer missing")
	}
	got.Items[0].Upd.StackObjectsCount = 999
	got.Locked = true

	again, _ := s.Get("o1")
	if again.StackCount() != 10 || again.Locked {
		t.Fatal("mutating a returned offer leaked into the store")
	}
}

func TestStoreExpireStale(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("live", "ammo_545_bp", OwnerSynthetic, "a", 1, 2000))
	s.Insert(simpleOffer("stale", "tool_wrench", OwnerSynthetic, "b", 1, 500))

	removed := s.ExpireStale(1000)
	if len(removed) != 1 || removed[0].ID != "stale" {
		t.Fatalf("removed %v", removed)
	}
	if s.Exists("stale") || !s.Exists("live") {
		t.Fatal("wrong offers survived expiry")
	}
	// Running again at the same instant removes nothing.
	if again := s.ExpireStale(1000); len(again) != 0 {
		t.Fatalf("second expiry pass removed %d offers", len(again))
	}
}

func TestStoreHide(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 1, 1000))

	if !s.Hide("o1") {
		t.Fatal("hide failed")
	}
	o, _ := s.Get("o1")
	if !o.Locked {
		t.Fatal("offer not locked")
	}
	if s.Hide("missing") {
		t.Fatal("hide of unknown id reported success")
	}
}

func TestStoreRemoveStack(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 10, 1000))

	remaining, err := s.RemoveStack("o1", 4)
	if err != nil || remaining != 6 {
		t.Fatalf("remaining=%d err=%v", remaining, err)
	}
	remaining, err = s.RemoveStack("o1", 6)
	if err != nil || remaining != 0 {
		t.Fatalf("remaining=%d err=%v", remaining, err)
	}
	if s.Exists("o1") {
		t.Fatal("exhausted offer still present")
	}
}

func TestStoreRemoveStackRejectsOversell(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 5, 1000))

	remaining, err := s.RemoveStack("o1", 7)
	if !errors.Is(err, ErrStackTooSmall) {
		t.Fatalf("oversized removal: remaining=%d err=%v", remaining, err)
	}
	o, ok := s.Get("o1")
	if !ok || o.StackCount() != 5 {
		t.Fatal("rejected removal still changed the stack")
	}
	// The full stack is still purchasable afterwards.
	if remaining, err := s.RemoveStack("o1", 5); err != nil || remaining != 0 {
		t.Fatalf("remaining=%d err=%v", remaining, err)
	}
}

func TestStoreRemoveStackConcurrentBoundsHold(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 5, 1000))

	var sold atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := s.RemoveStack("o1", 2); err == nil {
					sold.Add(2)
				}
			}
		}()
	}
	wg.Wait()
	if sold.Load() > 5 {
		t.Fatalf("sold %d units from a 5-stack", sold.Load())
	}
}

func TestStoreRemoveStackUnlimited(t *testing.T) {
	s := NewOfferStore()
	o := simpleOffer("o1", "ammo_545_bp", OwnerTrader, "trader_prapor", 999999, 1000)
	o.Items[0].Upd.UnlimitedCount = true
	s.Insert(o)

	remaining, err := s.RemoveStack("o1", 50)
	if err != nil || remaining != 999999 {
		t.Fatalf("unlimited stock changed: remaining=%d err=%v", remaining, err)
	}
}

func TestStoreRemoveOwner(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "weapon_mk2", OwnerTrader, "trader_prapor", 1, 1000))
	s.Insert(simpleOffer("o2", "ammo_545_bp", OwnerTrader, "trader_prapor", 1, 1000))
	s.Insert(simpleOffer("o3", "tool_wrench", OwnerTrader, "trader_fence", 1, 1000))

	if n := s.RemoveOwner("trader_prapor"); n != 2 {
		t.Fatalf("removed %d", n)
	}
	if s.Count() != 1 || !s.Exists("o3") {
		t.Fatal("wrong offers removed")
	}
}

func TestOwnerNeedsRefresh(t *testing.T) {
	s := NewOfferStore()
	if !s.OwnerNeedsRefresh("trader_prapor", 100, 3600) {
		t.Fatal("owner with no offers should need refresh")
	}
	s.InsertBatch("trader_prapor", 100, []*Offer{
		simpleOffer("o1", "weapon_mk2", OwnerTrader, "trader_prapor", 1, 100+3600),
	})
	if s.OwnerNeedsRefresh("trader_prapor", 200, 3600) {
		t.Fatal("fresh owner reported stale")
	}
	if !s.OwnerNeedsRefresh("trader_prapor", 100+3600, 3600) {
		t.Fatal("elapsed interval not detected")
	}
}

func TestConsumeDueSales(t *testing.T) {
	s := NewOfferStore()
	o := simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 10, 10000)
	o.SellResults = []SaleEvent{
		{Amount: 4, SellTime: 100},
		{Amount: 20, SellTime: 200}, // clamped to remaining stock
		{Amount: 1, SellTime: 5000}, // not yet due
	}
	s.Insert(o)

	records := s.ConsumeDueSales(300)
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Amount != 4 || records[1].Amount != 6 {
		t.Fatalf("amounts %d,%d", records[0].Amount, records[1].Amount)
	}
	if !records[0].Simulated {
		t.Fatal("simulated flag missing")
	}
	if s.Exists("o1") {
		t.Fatal("sold-out offer still present")
	}
}

func TestLiveAssortIDs(t *testing.T) {
	s := NewOfferStore()
	s.Insert(simpleOffer("o1", "ammo_545_bp", OwnerSynthetic, "a", 1, 1000))
	s.Insert(simpleOffer("o2", "weapon_mk2", OwnerTrader, "trader_prapor", 1, 1000))

	live := s.LiveAssortIDs(OwnerSynthetic)
	if len(live) != 1 {
		t.Fatalf("live set %v", live)
	}
	if _, ok := live["ammo_545_bp"]; !ok {
		t.Fatal("synthetic assort id missing")
	}
}
