// Command kalah-solve strong-solves a Kalah(p,s) variant: it runs
// forward BFS enumeration to discover every reachable position, then
// retrograde minimax to score every one of them, printing the opening
// score and best opening move. It is grounded on the teacher's
// cmd/chessplay-uci/main.go: flag-parsed configuration, a single
// long-running component constructed and run from main, log.Printf
// progress reporting.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/hailam/kalahsolve/internal/bfs"
	"github.com/hailam/kalahsolve/internal/governor"
	"github.com/hailam/kalahsolve/internal/query"
	"github.com/hailam/kalahsolve/internal/retrograde"
	"github.com/hailam/kalahsolve/internal/rules"
	"github.com/hailam/kalahsolve/internal/store"
)

var (
	p           = flag.Int("p", 6, "pits per side")
	s           = flag.Int("s", 4, "seeds per pit at the opening")
	dbDir       = flag.String("db", "./kalah.db", "position store directory")
	fastMode    = flag.Bool("fast", false, "relax durability for throughput (store is re-populated from scratch on crash)")
	workerCount = flag.Int("workers", 8, "worker goroutine count (W0)")
	chunkSize   = flag.Int("chunk", 100000, "BFS parents per worker dispatch (C)")
	batchSize   = flag.Int("batch", 100000, "retrograde positions per fetch (B)")
	dedupMax    = flag.Int("dedup", 10000000, "worker-side fingerprint cache capacity (K)")
	interactive = flag.Bool("query", false, "drop into a read-only query REPL after solving")
	countOnly   = flag.Bool("count-only", false, "run BFS enumeration only and report per-depth reachable-state counts, skipping retrograde")
)

func main() {
	flag.Parse()

	pr := rules.Params{P: *p, S: *s}
	log.Printf("[MAIN] solving Kalah(%d,%d) into %s", pr.P, pr.S, *dbDir)

	st, err := store.Open(store.Options{Dir: *dbDir, FastMode: *fastMode})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cached := store.NewCachingStore(st, *dedupMax)
	z := rules.NewZobrist(pr)

	gov := governor.New(governor.DefaultConfig(*workerCount, *chunkSize, *batchSize, *dedupMax))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gov.Run()
	defer gov.Stop()

	notifyCtx, stopNotify := signal.NotifyContext(ctx, os.Interrupt)
	defer stopNotify()

	bfsDriver := bfs.New(bfs.Config{
		Params:        pr,
		Zobrist:       z,
		Store:         cached,
		Governor:      gov,
		WorkerCount:   *workerCount,
		ChunkSize:     *chunkSize,
		QueueCapacity: *workerCount * 4,
	})
	if err := bfsDriver.Run(notifyCtx); err != nil {
		log.Fatalf("bfs enumeration failed: %v", err)
	}

	if *countOnly {
		reportReachableCounts(cached)
		return
	}

	if err := st.ReorganizeBySeedLevel(); err != nil {
		log.Printf("[MAIN] physical reorganization failed (non-fatal): %v", err)
	}

	retroDriver := retrograde.New(retrograde.Config{
		Params:      pr,
		Zobrist:     z,
		Store:       cached,
		Governor:    gov,
		WorkerCount: *workerCount,
		BatchSize:   *batchSize,
	})
	if err := retroDriver.Run(notifyCtx); err != nil {
		log.Fatalf("retrograde solve failed: %v", err)
	}

	if err := st.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}

	line, err := store.ExportOpeningLine(cached, pr, z)
	if err != nil {
		log.Fatalf("export opening line: %v", err)
	}
	log.Printf("[MAIN] opening_score=%d principal_line=%v", line.Score, line.Moves)

	if *interactive {
		repl := query.New(cached, pr, os.Stdout)
		repl.Run(os.Stdin)
	}
}

// reportReachableCounts prints the per-depth reachable-state counts of a
// completed BFS pass, the supplemental counting-harness mode of
// SPEC_FULL.md §5 (adapted from the teacher's perft counting style: one
// line per ply, then a total).
func reportReachableCounts(s store.Store) {
	total := 0
	for depth := uint16(0); ; depth++ {
		n, err := s.CountByDepth(depth)
		if err != nil {
			log.Fatalf("count depth %d: %v", depth, err)
		}
		if n == 0 {
			break
		}
		log.Printf("depth %d: %d", depth, n)
		total += n
	}
	log.Printf("total reachable states: %d", total)
}
