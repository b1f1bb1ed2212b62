package market

import (
	"io"
	"log"
	"math/rand"
	"testing"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/tuning"
)

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return c
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testSampler(seed int64) *WeightedSampler {
	return NewWeightedSampler(rand.New(rand.NewSource(seed)))
}

// deterministicTuning pins every randomized range to a single value so
// generation assertions are exact.
func deterministicTuning() tuning.Tuning {
	cfg := tuning.Defaults()
	cfg.Dynamic.OffersPerItem = tuning.MinMax{Min: 1, Max: 1}
	cfg.Dynamic.BarterChancePercent = 0
	cfg.Dynamic.CurrencyWeights = map[string]int{"currency_rouble": 1}
	return cfg
}

func simpleOffer(id string, tpl string, kind OwnerKind, owner string, stack int, end int64) *Offer {
	return &Offer{
		ID:       id,
		IntID:    1,
		User:     SellerRef{Kind: kind, ID: owner},
		AssortID: tpl,
		Root:     id + "-root",
		Items: []OfferItem{{
			ID:  id + "-root",
			Tpl: tpl,
			Upd: &ItemUpd{StackObjectsCount: stack},
		}},
		Requirements:     []Requirement{{Tpl: "currency_rouble", Count: 100, IsCurrency: true}},
		RequirementsCost: 100,
		SummaryCost:      100,
		StartTime:        0,
		EndTime:          end,
	}
}
