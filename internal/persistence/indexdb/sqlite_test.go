package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"fleamarket.gg/internal/sim/market"
)

func TestSQLiteIndex_RecordSale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordSale(market.SaleRecord{
		OfferID:   "offer-1",
		Tpl:       "ammo_545_bp",
		Amount:    30,
		Price:     12000,
		Seller:    "synthetic:Viktor",
		SoldAt:    1700000000,
		Simulated: true,
	})
	idx.Event("offer_hidden", map[string]any{"offer_id": "offer-2"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		tpl       string
		amount    int
		price     int
		seller    string
		soldAt    int64
		simulated int
	)
	row := db.QueryRow(`SELECT tpl,amount,price,seller,sold_at,simulated FROM sales WHERE offer_id='offer-1'`)
	if err := row.Scan(&tpl, &amount, &price, &seller, &soldAt, &simulated); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if tpl != "ammo_545_bp" || amount != 30 || price != 12000 || seller != "synthetic:Viktor" || soldAt != 1700000000 || simulated != 1 {
		t.Fatalf("row mismatch: tpl=%q amount=%d price=%d seller=%q sold_at=%d simulated=%d", tpl, amount, price, seller, soldAt, simulated)
	}

	var kind string
	if err := db.QueryRow(`SELECT kind FROM audits LIMIT 1`).Scan(&kind); err != nil {
		t.Fatalf("Scan audit: %v", err)
	}
	if kind != "offer_hidden" {
		t.Fatalf("audit kind=%q want=offer_hidden", kind)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqSale, sale: market.SaleRecord{OfferID: "filler"}}

	s.RecordSale(market.SaleRecord{OfferID: "dropped"})
	s.Event("trader_refreshed", nil)

	st := s.Stats()
	if st.DropSaleTotal != 1 {
		t.Fatalf("DropSaleTotal=%d want=1", st.DropSaleTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
