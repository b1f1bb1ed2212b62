package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fleamarket.gg/internal/persistence/indexdb"
	persistlog "fleamarket.gg/internal/persistence/log"
	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/market"
	"fleamarket.gg/internal/sim/tuning"
	"fleamarket.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		seed       = flag.Int64("seed", 1337, "market seed for offer generation and sale simulation")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite sale/audit index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: queryable read-model index (sales + audit + catalog digests).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	saleLog := persistlog.NewSaleLogger(*dataDir)
	auditLog := persistlog.NewAuditLogger(*dataDir)
	defer saleLog.Close()
	defer auditLog.Close()

	m := market.New(cats, tune, logger, market.Options{
		Seed:  *seed,
		Sales: multiSaleSink{a: saleLog, b: idx},
		Audit: multiAuditSink{a: auditLog, b: idx},
	})
	m.Bootstrap()

	ctx, cancel := signalContext()
	defer cancel()

	go m.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		mm := m.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP fleamarket_offers_live Offers currently listed.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_offers_live gauge\n")
		fmt.Fprintf(rw, "fleamarket_offers_live %d\n", mm.OffersLive.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_offers_generated_total Offers generated since start.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_offers_generated_total counter\n")
		fmt.Fprintf(rw, "fleamarket_offers_generated_total %d\n", mm.OffersGenerated.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_offers_expired_total Offers aged out since start.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_offers_expired_total counter\n")
		fmt.Fprintf(rw, "fleamarket_offers_expired_total %d\n", mm.OffersExpired.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_sales_total Completed sales since start.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_sales_total counter\n")
		fmt.Fprintf(rw, "fleamarket_sales_total{kind=%q} %d\n", "simulated", mm.SalesSimulated.Load())
		fmt.Fprintf(rw, "fleamarket_sales_total{kind=%q} %d\n", "committed", mm.SalesCommitted.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_tax_quotes_total Tax quotes issued since start.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_tax_quotes_total counter\n")
		fmt.Fprintf(rw, "fleamarket_tax_quotes_total %d\n", mm.TaxQuotes.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_cycles_total Maintenance cycles completed.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_cycles_total counter\n")
		fmt.Fprintf(rw, "fleamarket_cycles_total %d\n", mm.Cycles.Load())

		fmt.Fprintf(rw, "# HELP fleamarket_last_cycle_unix Unix timestamp of the last maintenance cycle.\n")
		fmt.Fprintf(rw, "# TYPE fleamarket_last_cycle_unix gauge\n")
		fmt.Fprintf(rw, "fleamarket_last_cycle_unix %d\n", mm.LastCycleUnix.Load())

		writeIndexMetrics(rw, idx)
	})
	if envBool("FM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (FM_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(m, cats, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP fleamarket_index_queue_depth Current index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE fleamarket_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "fleamarket_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP fleamarket_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE fleamarket_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "fleamarket_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP fleamarket_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE fleamarket_index_dropped_total counter\n")
	fmt.Fprintf(rw, "fleamarket_index_dropped_total{kind=%q} %d\n", "sale", s.DropSaleTotal)
	fmt.Fprintf(rw, "fleamarket_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
}

// multiSaleSink fans each sale out to the JSONL log and the sqlite index.
type multiSaleSink struct {
	a market.SaleSink
	b *indexdb.SQLiteIndex
}

func (m multiSaleSink) RecordSale(rec market.SaleRecord) {
	if m.a != nil {
		m.a.RecordSale(rec)
	}
	if m.b != nil {
		m.b.RecordSale(rec)
	}
}

type multiAuditSink struct {
	a market.AuditSink
	b *indexdb.SQLiteIndex
}

func (m multiAuditSink) Event(kind string, fields map[string]any) {
	if m.a != nil {
		m.a.Event(kind, fields)
	}
	if m.b != nil {
		m.b.Event(kind, fields)
	}
}
