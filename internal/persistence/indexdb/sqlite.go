package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/market"
	"fleamarket.gg/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index over the sale and audit streams.
// Writes go through a buffered channel to a single writer goroutine so the
// market update loop never blocks on disk.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSales  atomic.Int64
	dropAudits atomic.Int64
}

type reqKind int

const (
	reqSale reqKind = iota + 1
	reqAudit
)

type req struct {
	kind reqKind

	sale  market.SaleRecord
	audit auditRow
}

type auditRow struct {
	At     int64
	Kind   string
	Fields map[string]any
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: a trader refresh plus a busy sale window can burst
		// thousands of events in one cycle without stalling the market.
		ch: make(chan req, 262144),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			offer_id TEXT NOT NULL,
			tpl TEXT NOT NULL,
			amount INTEGER NOT NULL,
			price INTEGER NOT NULL,
			seller TEXT NOT NULL,
			buyer TEXT,
			sold_at INTEGER NOT NULL,
			simulated INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sales_tpl_sold_at ON sales(tpl, sold_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sales_seller_sold_at ON sales(seller, sold_at);`,
		`CREATE TABLE IF NOT EXISTS audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			fields_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_kind_at ON audits(kind, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSale implements market.SaleSink. Never blocks.
func (s *SQLiteIndex) RecordSale(rec market.SaleRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSale, sale: rec}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropSales.Add(1)
	}
}

// Event implements market.AuditSink. Never blocks.
func (s *SQLiteIndex) Event(kind string, fields map[string]any) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: auditRow{At: time.Now().Unix(), Kind: kind, Fields: fields}}:
	default:
		s.dropAudits.Add(1)
	}
}

type Stats struct {
	DropSaleTotal  int64
	DropAuditTotal int64
	QueueDepth     int
	QueueCapacity  int
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropSaleTotal:  s.dropSales.Load(),
		DropAuditTotal: s.dropAudits.Load(),
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
	}
}

// UpsertCatalogs records the catalog set the server is running with, keyed by
// digest, plus the canonical tuning actually applied.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("items", filepath.Join(configDir, "items.json"))
		read("presets", filepath.Join(configDir, "presets.json"))
		read("handbook", filepath.Join(configDir, "handbook.json"))
		read("prices", filepath.Join(configDir, "prices.json"))
		read("locales", filepath.Join(configDir, "locales.json"))
		read("traders", filepath.Join(configDir, "traders.json"))
		read("events", filepath.Join(configDir, "events.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	rows := []kv{
		{name: "items", digest: cats.Items.DefsDigest, json: raw["items"]},
		{name: "presets", digest: cats.Presets.Digest, json: raw["presets"]},
		{name: "handbook", digest: cats.Handbook.Digest, json: raw["handbook"]},
		{name: "prices", digest: cats.Prices.Digest, json: raw["prices"]},
		{name: "locales", digest: cats.Locales.Digest, json: raw["locales"]},
		{name: "traders", digest: cats.Traders.Digest, json: raw["traders"]},
		{name: "events", digest: cats.Events.Digest, json: raw["events"]},
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertSale, _ := s.db.Prepare(`INSERT INTO sales(offer_id,tpl,amount,price,seller,buyer,sold_at,simulated,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT INTO audits(at,kind,fields_json) VALUES(?,?,?)`)
	defer func() {
		if insertSale != nil {
			_ = insertSale.Close()
		}
		if insertAudit != nil {
			_ = insertAudit.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSale:
			if insertSale == nil {
				continue
			}
			raw, _ := json.Marshal(r.sale)
			simulated := 0
			if r.sale.Simulated {
				simulated = 1
			}
			if _, err := tx.Stmt(insertSale).Exec(
				r.sale.OfferID,
				r.sale.Tpl,
				r.sale.Amount,
				r.sale.Price,
				r.sale.Seller,
				r.sale.Buyer,
				r.sale.SoldAt,
				simulated,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqAudit:
			if insertAudit == nil {
				continue
			}
			fieldsJSON, _ := json.Marshal(r.audit.Fields)
			if _, err := tx.Stmt(insertAudit).Exec(r.audit.At, r.audit.Kind, string(fieldsJSON)); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
