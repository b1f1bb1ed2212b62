package market

import (
	"log"
	"math"

	"fleamarket.gg/internal/sim/tuning"
)

// SaleSimulator decides whether and when each unit of a listed stack sells
// within the offer's lifetime window.
type SaleSimulator struct {
	cfg     tuning.SellTuning
	sampler *WeightedSampler
	log     *log.Logger
}

func NewSaleSimulator(cfg tuning.SellTuning, sampler *WeightedSampler, logger *log.Logger) *SaleSimulator {
	return &SaleSimulator{cfg: cfg, sampler: sampler, log: logger}
}

// Simulate rolls partial-sale batches against chancePercent until the stack
// is exhausted or the running clock passes windowEnd. A zero chance yields an
// empty schedule; a NaN chance (upstream rounding damage) is replaced by the
// configured base chance and logged.
func (s *SaleSimulator) Simulate(chancePercent float64, count int, now, windowEnd int64, sellInOneGo bool) []SaleEvent {
	if math.IsNaN(chancePercent) {
		s.log.Printf("sale sim: NaN sell chance, substituting base %d%%", s.cfg.BaseChancePercent)
		chancePercent = float64(s.cfg.BaseChancePercent)
	}
	if chancePercent <= 0 {
		return nil
	}

	var events []SaleEvent
	sellTime := now
	remaining := count
	for remaining > 0 && sellTime < windowEnd {
		bought := remaining
		if !sellInOneGo {
			bought = s.sampler.IntBetween(1, remaining)
		}
		if s.sampler.Chance100(chancePercent) {
			// Higher chance biases completion toward sooner.
			weighting := (100 - chancePercent) / 100
			minSeconds := float64(s.cfg.TimeMinMinutes * 60)
			maxSeconds := weighting * float64(s.cfg.TimeMaxMinutes*60)
			if maxSeconds < minSeconds {
				maxSeconds = minSeconds + 5
			}
			delta := math.Floor(s.sampler.FloatBetween(0, maxSeconds-minSeconds)+minSeconds) + 1
			sellTime += int64(delta)
			if sellTime >= windowEnd {
				break
			}
			events = append(events, SaleEvent{Amount: bought, SellTime: sellTime})
		}
		remaining -= bought
	}
	return events
}
