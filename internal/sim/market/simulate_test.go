package market

import (
	"math"
	"testing"

	"fleamarket.gg/internal/sim/tuning"
)

func newTestSimulator(seed int64) *SaleSimulator {
	cfg := tuning.Defaults().Sell
	return NewSaleSimulator(cfg, testSampler(seed), testLogger())
}

func TestSimulateTerminatesInsideWindow(t *testing.T) {
	sim := newTestSimulator(42)
	const windowEnd = int64(3 * 3600)
	for chance := 1; chance <= 100; chance += 7 {
		for _, count := range []int{1, 5, 60} {
			events := sim.Simulate(float64(chance), count, 0, windowEnd, false)
			total := 0
			for _, ev := range events {
				if ev.SellTime >= windowEnd {
					t.Fatalf("chance=%d count=%d: event at %d past window end", chance, count, ev.SellTime)
				}
				if ev.Amount < 1 {
					t.Fatalf("chance=%d count=%d: empty sale event", chance, count)
				}
				total += ev.Amount
			}
			if total > count {
				t.Fatalf("chance=%d count=%d: sold %d of %d", chance, count, total, count)
			}
		}
	}
}

func TestSimulateEventsAreOrdered(t *testing.T) {
	sim := newTestSimulator(7)
	events := sim.Simulate(90, 60, 0, 100000, false)
	for i := 1; i < len(events); i++ {
		if events[i].SellTime <= events[i-1].SellTime {
			t.Fatalf("events out of order at %d: %v", i, events)
		}
	}
}

func TestSimulateZeroChance(t *testing.T) {
	sim := newTestSimulator(1)
	if events := sim.Simulate(0, 10, 0, 100000, false); len(events) != 0 {
		t.Fatalf("0%% chance produced %d events", len(events))
	}
}

func TestSimulateNaNChanceSubstitutesBase(t *testing.T) {
	sim := newTestSimulator(1)
	// Must not panic and must behave like a normal roll with the base chance.
	events := sim.Simulate(math.NaN(), 10, 0, 100000, false)
	for _, ev := range events {
		if ev.SellTime >= 100000 {
			t.Fatalf("event past window end: %v", ev)
		}
	}
}

func TestSimulateOneGoSellsWholeStack(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		s := newTestSimulator(seed)
		events := s.Simulate(100, 25, 0, 1000000, true)
		if len(events) > 1 {
			t.Fatalf("seed %d: one-go sale split into %d events", seed, len(events))
		}
		if len(events) == 1 && events[0].Amount != 25 {
			t.Fatalf("seed %d: one-go sale amount %d", seed, events[0].Amount)
		}
	}
}
