// Command benchmark measures transaction throughput and retries when many writers
// contend for a small set of documents on the in-memory store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/inmemory"
)

func main() {
	count := flag.Int("count", 10000, "Number of transactions to run")
	docs := flag.Int("docs", 4, "Number of documents the transactions contend for")
	workers := flag.Int("workers", 16, "Concurrent transactions")
	maxTries := flag.Int("max-tries", 50, "Maximum attempts per transaction")
	delay := flag.Duration("delay", 100*time.Microsecond, "Base backoff delay")
	flag.Parse()

	if *docs < 1 || *count < 1 {
		fmt.Println("count and docs must be positive")
		os.Exit(1)
	}
	fmt.Printf("Benchmarking %d transactions over %d documents with %d workers\n", *count, *docs, *workers)

	ctx := context.Background()
	store := inmemory.NewStore()
	const db = "benchmark"
	for i := 0; i < *docs; i++ {
		if _, err := store.Put(db, doctxn.Document{"_id": fmt.Sprintf("doc_%d", i), "val": 0}, ""); err != nil {
			fmt.Printf("Failed to seed document %d: %v\n", i, err)
			os.Exit(1)
		}
	}

	opts := doctxn.DefaultOptions()
	opts.MaxAttempts = *maxTries
	opts.BaseDelay = *delay
	opts.Timestamps = false
	c := doctxn.NewClient(store, doctxn.WithOptions(opts))

	reqs := make([]doctxn.Request, *count)
	for i := range reqs {
		reqs[i] = doctxn.ByID("mem://", db, fmt.Sprintf("doc_%d", i%*docs))
	}
	incr := func(_ context.Context, doc doctxn.Document) (doctxn.Document, error) {
		doc["val"] = doc["val"].(float64) + 1
		return nil, nil
	}

	start := time.Now()
	outcomes, err := c.UpdateMany(ctx, reqs, incr, *workers)
	if err != nil {
		fmt.Printf("Failed to run transactions: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(start)

	attempts, exhausted := 0, 0
	for _, o := range outcomes {
		attempts += o.Attempts
		if o.Kind != doctxn.StateDone {
			exhausted++
		}
	}
	fmt.Printf("Update: %d transactions in %v (%.2f ops/sec)\n", *count, duration, float64(*count)/duration.Seconds())
	fmt.Printf("Attempts: %d (%.2f per transaction), not done: %d\n", attempts, float64(attempts)/float64(*count), exhausted)

	total := 0.0
	for i := 0; i < *docs; i++ {
		doc, err := store.Get(db, fmt.Sprintf("doc_%d", i))
		if err != nil {
			fmt.Printf("Failed to read document %d: %v\n", i, err)
			os.Exit(1)
		}
		total += doc["val"].(float64)
	}
	// Every done transaction added exactly one.
	if int(total) != *count-exhausted {
		fmt.Printf("Lost updates: documents sum to %d, expected %d\n", int(total), *count-exhausted)
		os.Exit(1)
	}
	fmt.Println("No lost updates")
}
