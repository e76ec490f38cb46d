package doctxn_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/inmemory"
)

const (
	testCouch = "http://localhost:5984"
	testDB    = "txn_test"
)

// countingStore wraps a DocumentStore, counting calls and optionally injecting errors.
type countingStore struct {
	doctxn.DocumentStore
	fetches atomic.Int32
	writes  atomic.Int32

	fetchErr error
	writeErr func(n int32) error
}

func (s *countingStore) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	s.fetches.Add(1)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.DocumentStore.Fetch(ctx, loc)
}

func (s *countingStore) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, rev string) (string, error) {
	n := s.writes.Add(1)
	if s.writeErr != nil {
		if err := s.writeErr(n); err != nil {
			return "", err
		}
	}
	return s.DocumentStore.Write(ctx, loc, doc, rev)
}

// alwaysConflict rejects every write as stale.
func alwaysConflict(int32) error {
	return &doctxn.ConflictError{Status: 409}
}

// newFixture returns a store seeded with {_id: doc_a, val: 23}, like the CouchDB test setup.
func newFixture(t *testing.T) (*inmemory.Store, *countingStore) {
	t.Helper()
	mem := inmemory.NewStore()
	if _, err := mem.Put(testDB, doctxn.Document{"_id": "doc_a", "val": 23}, ""); err != nil {
		t.Fatalf("seeding doc_a failed, details: %v", err)
	}
	return mem, &countingStore{DocumentStore: mem}
}

func docA() doctxn.Request {
	return doctxn.ByID(testCouch, testDB, "doc_a")
}

// plus returns a mutation adding x to doc.val, failing when val is missing.
func plus(x float64) doctxn.Mutation {
	return func(_ context.Context, doc doctxn.Document) (doctxn.Document, error) {
		v, ok := doc["val"].(float64)
		if !ok {
			return nil, errNoValue
		}
		doc["val"] = v + x
		return nil, nil
	}
}

var errNoValue = &valueError{}

type valueError struct{}

func (*valueError) Error() string { return "No value" }

func noop(context.Context, doctxn.Document) (doctxn.Document, error) {
	return nil, nil
}

// recorder collects events with their arrival time.
type recorder struct {
	mu     sync.Mutex
	events []doctxn.Event
	times  []time.Time
	ignore chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ignore: make(chan struct{}, 8)}
}

func (r *recorder) observe(e doctxn.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.times = append(r.times, time.Now())
	r.mu.Unlock()
	if e.Kind == doctxn.EventIgnore {
		r.ignore <- struct{}{}
	}
}

func (r *recorder) kinds() []doctxn.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]doctxn.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) count(k doctxn.EventKind) int {
	n := 0
	for _, kk := range r.kinds() {
		if kk == k {
			n++
		}
	}
	return n
}

func (r *recorder) timesOf(k doctxn.EventKind) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Time
	for i, e := range r.events {
		if e.Kind == k {
			out = append(out, r.times[i])
		}
	}
	return out
}

func fastOptions() doctxn.Options {
	o := doctxn.DefaultOptions()
	o.BaseDelay = time.Millisecond
	o.OperationTimeout = 5 * time.Second
	return o
}

func waitOutcome(t *testing.T, txn *doctxn.Transaction) doctxn.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o, err := txn.Wait(ctx)
	if err != nil {
		t.Fatalf("transaction did not finish, details: %v", err)
	}
	return o
}
