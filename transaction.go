package doctxn

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/doctxn/changes"
)

const untitled = "Untitled"

// Transaction updates one document: fetch, mutate, conditionally write, and retry the
// whole cycle on write conflicts. Create it with NewTransaction (or Client.Update) and
// run it with Start. It produces exactly one Outcome and is inert afterwards.
type Transaction struct {
	id       uuid.UUID
	name     string
	locator  Locator
	store    DocumentStore
	mutation Mutation
	options  Options
	tracker  ChangeTracker
	observer Observer
	log      *log.Logger
	backoff  retry.Backoff

	mu         sync.Mutex
	state      State
	attempts   int
	generation uint64
	retryTimer *time.Timer
	opTimer    *time.Timer
	outcome    Outcome

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

type opResult struct {
	doc Document
	err error
}

// NewTransaction prepares a Transaction. Nothing is validated or fetched until Start.
func NewTransaction(store DocumentStore, loc Locator, mutation Mutation, opts ...Option) *Transaction {
	s := newSettings(opts)
	t := &Transaction{
		id:       NewUUID(),
		locator:  loc,
		store:    store,
		mutation: mutation,
		options:  s.options,
		tracker:  s.tracker,
		observer: s.observer,
		stopped:  make(chan struct{}),
	}
	t.name = s.options.Name
	if t.name == "" {
		t.name = mutationName(mutation)
	}
	t.log = s.logger.With("txn", t.id.String(), "name", t.name)
	return t
}

// mutationName derives a diagnostic name from the mutation's function symbol.
func mutationName(m Mutation) string {
	if m == nil {
		return untitled
	}
	fn := runtime.FuncForPC(reflect.ValueOf(m).Pointer())
	if fn == nil {
		return untitled
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return untitled
	}
	return name
}

// ID returns the transaction id used in logs.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Name returns the diagnostic name.
func (t *Transaction) Name() string { return t.name }

// Locator returns the document the transaction updates.
func (t *Transaction) Locator() Locator { return t.locator }

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Attempts returns the number of attempts made so far.
func (t *Transaction) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Done returns a channel closed once the transaction reaches a terminal state.
func (t *Transaction) Done() <-chan struct{} {
	return t.stopped
}

// Outcome returns the terminal outcome. It is the zero Outcome until Done is closed.
func (t *Transaction) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Wait blocks until the transaction ends or ctx is done.
func (t *Transaction) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.stopped:
		return t.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Start validates the transaction and begins the first attempt in a new goroutine.
// Invalid input is reported synchronously as a *ConfigurationError and nothing is fetched.
// Cancelling ctx cancels the transaction.
func (t *Transaction) Start(ctx context.Context) error {
	if err := t.options.Validate(); err != nil {
		return err
	}
	if t.locator.IsZero() {
		return &ConfigurationError{Constraint: ConstraintLocatorRequired, Detail: "request locator required"}
	}
	if t.mutation == nil {
		return &ConfigurationError{Constraint: ConstraintMutationRequired, Detail: "data operation required"}
	}
	if t.store == nil {
		return &ConfigurationError{Constraint: ConstraintStoreRequired, Detail: "document store required"}
	}

	t.mu.Lock()
	if state := t.state; state != StateIdle {
		t.mu.Unlock()
		return &FaultError{Name: t.name, Detail: fmt.Sprintf("start called in state %s", state)}
	}
	t.state = StateAttempting
	t.attempts = 0
	t.backoff = newBackoff(t.options)
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	go t.run()
	return nil
}

// Cancel stops the transaction: pending timers are cleared, in-flight I/O is signalled
// through its context and any result arriving later is discarded. No-op once terminal.
func (t *Transaction) Cancel() {
	t.log.Debug("Cancelling transaction", "tries", t.Attempts())
	t.finish(Outcome{Kind: StateCancelled, Err: Error{Code: CancelledFailure, Err: ErrCancelled}})
}

func (t *Transaction) run() {
	for t.attempt() {
	}
}

// attempt waits out the backoff delay, if any, then runs one fetch-mutate-write cycle.
// It reports whether the cycle ended in a write conflict calling for another attempt.
func (t *Transaction) attempt() bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	made := t.attempts
	if made >= t.options.MaxAttempts {
		t.mu.Unlock()
		t.log.Debug("Too many tries", "tries", made)
		t.finish(Outcome{Kind: StateExhausted, Err: &ExhaustedError{Name: t.name, Attempts: made}})
		return false
	}
	if t.retryTimer != nil {
		t.mu.Unlock()
		t.fault("retry timer already set")
		return false
	}
	var wait <-chan time.Time
	if made > 0 {
		delay, stop := t.backoff.Next()
		if stop {
			t.mu.Unlock()
			t.log.Debug("Backoff stopped", "tries", made)
			t.finish(Outcome{Kind: StateExhausted, Err: &ExhaustedError{Name: t.name, Attempts: made}})
			return false
		}
		t.log.Debug("Delay until next attempt", "delay", delay)
		t.retryTimer = time.NewTimer(delay)
		t.state = StateWaitingToRetry
		wait = t.retryTimer.C
	}
	t.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-t.stopped:
			return false
		case <-t.ctx.Done():
			t.Cancel()
			return false
		}
		t.mu.Lock()
		if t.state.Terminal() {
			t.mu.Unlock()
			return false
		}
		t.retryTimer = nil
		t.state = StateAttempting
		t.mu.Unlock()
	}

	t.mu.Lock()
	t.attempts++
	n := t.attempts
	t.mu.Unlock()
	t.emit(Event{Kind: EventAttempt, Attempt: n})
	return t.runAttempt(n)
}

// runAttempt is one fetch-mutate-write cycle. It reports whether a write conflict occurred.
func (t *Transaction) runAttempt(n int) bool {
	t.log.Debug("Transaction attempt", "try", n, "max_tries", t.options.MaxAttempts, "uri", t.locator.Address())

	doc, err := t.store.Fetch(t.ctx, t.locator)
	if t.stale("fetch") {
		return false
	}
	switch {
	case err != nil && IsNotFound(err) && t.options.Create:
		t.log.Debug("Creating missing document", "id", t.locator.DocumentID())
		doc = Document{FieldID: t.locator.DocumentID()}
	case err != nil:
		t.ioFailed(FetchFailure, err)
		return false
	case doc.ID() == "":
		t.fail(Error{Code: FetchFailure, Err: fmt.Errorf("no _id: %s", doc)})
		return false
	case doc.Rev() == "":
		t.fail(Error{Code: FetchFailure, Err: fmt.Errorf("no _rev: %s", doc)})
		return false
	}

	original, err := doc.Clone()
	if err != nil {
		t.fail(Error{Code: FetchFailure, Err: err})
		return false
	}
	id, rev := doc.ID(), doc.Rev()

	gen, err := t.armOperation()
	if err != nil {
		t.fault(err.Error())
		return false
	}
	results := make(chan opResult, 1)
	go t.invoke(gen, doc, results)

	var res opResult
	select {
	case res = <-results:
	case <-t.stopped:
		return false
	case <-t.ctx.Done():
		t.Cancel()
		return false
	}
	if t.stale("operation") {
		return false
	}

	if res.err != nil {
		if t.ctx.Err() != nil {
			t.Cancel()
			return false
		}
		t.fail(Error{Code: MutationFailure, Err: res.err})
		return false
	}
	if res.doc != nil {
		t.log.Debug("Using new doc", "doc", res.doc.String())
		t.emit(Event{Kind: EventReplace, Attempt: n, Old: doc, New: res.doc})
		doc = res.doc
	}

	unchanged, err := t.tracker.Unchanged(original, doc)
	if err != nil {
		t.fail(Error{Code: MutationFailure, Err: err})
		return false
	}
	if unchanged {
		t.log.Debug("Skipping txn update for unchanged doc", "id", id)
		t.finish(Outcome{Kind: StateDone, Document: doc})
		return false
	}

	if cs, err := t.tracker.Diff(original, doc); err != nil {
		t.log.Warn("Operation diff failed", "error", err)
	} else {
		t.log.Debug("Operation diff", "diff", cs.String())
		t.emit(Event{Kind: EventChange, Attempt: n, Changes: cs})
	}

	doc[FieldID] = id
	if rev != "" {
		doc[FieldRev] = rev
	} else {
		delete(doc, FieldRev)
	}
	if t.options.Timestamps {
		stamp(doc)
	}

	t.log.Debug("Updating transaction", "uri", t.locator.Address())
	newRev, err := t.store.Write(t.ctx, t.locator, doc, rev)
	if t.stale("write") {
		return false
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			t.log.Debug("Conflict", "try", n)
			t.emit(Event{Kind: EventConflict, Attempt: n, Err: err})
			return true
		}
		t.ioFailed(WriteFailure, err)
		return false
	}
	doc[FieldRev] = newRev
	t.finish(Outcome{Kind: StateDone, Document: doc})
	return false
}

// armOperation starts the single-shot operation timer for a new generation.
func (t *Transaction) armOperation() (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.opTimer != nil {
		return 0, fmt.Errorf("op timer already set")
	}
	t.generation++
	gen := t.generation
	t.opTimer = time.AfterFunc(t.options.OperationTimeout, func() { t.expire(gen) })
	return gen, nil
}

// invoke runs the mutation and hands its result over only if the attempt is still live.
func (t *Transaction) invoke(gen uint64, doc Document, results chan<- opResult) {
	var res opResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				res = opResult{err: fmt.Errorf("operation panicked: %v", r)}
			}
		}()
		res.doc, res.err = t.mutation(t.ctx, doc)
	}()
	if !t.settle(gen) {
		t.log.Debug("Ignoring operation after timeout")
		t.emit(Event{Kind: EventIgnore, Err: res.err})
		return
	}
	results <- res
}

// settle claims the attempt for the mutation's result. It fails when the operation
// timer already fired or the transaction ended, making the result stale.
func (t *Transaction) settle(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation || t.opTimer == nil || t.state.Terminal() {
		return false
	}
	t.opTimer.Stop()
	t.opTimer = nil
	return true
}

// expire claims the attempt for the operation timer.
func (t *Transaction) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.opTimer == nil || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.opTimer = nil
	t.mu.Unlock()
	t.finish(Outcome{Kind: StateTimedOut, Err: &TimeoutError{Name: t.name, Timeout: t.options.OperationTimeout}})
}

// stale reports, and signals, a result arriving after the transaction ended.
func (t *Transaction) stale(what string) bool {
	t.mu.Lock()
	terminal := t.state.Terminal()
	t.mu.Unlock()
	if terminal {
		t.log.Debug("Ignoring result after transaction ended", "result", what)
		t.emit(Event{Kind: EventIgnore})
	}
	return terminal
}

// ioFailed ends the transaction after a store error; caller cancellation wins over failure.
func (t *Transaction) ioFailed(code ErrorCode, err error) {
	if t.ctx.Err() != nil {
		t.Cancel()
		return
	}
	t.fail(Error{Code: code, Err: err})
}

func (t *Transaction) fail(err error) {
	t.finish(Outcome{Kind: StateFailed, Err: err})
}

func (t *Transaction) fault(detail string) {
	t.log.Error("Transaction fault", "detail", detail)
	t.fail(&FaultError{Name: t.name, Detail: detail})
}

// finish records the terminal outcome exactly once and stops every timer.
func (t *Transaction) finish(o Outcome) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = o.Kind
	o.Attempts = t.attempts
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	if t.opTimer != nil {
		t.opTimer.Stop()
		t.opTimer = nil
	}
	t.generation++
	t.outcome = o
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	switch o.Kind {
	case StateDone:
		t.emit(Event{Kind: EventDone, Attempt: o.Attempts, Document: o.Document})
	case StateExhausted:
		t.emit(Event{Kind: EventExhausted, Attempt: o.Attempts, Err: o.Err})
	case StateTimedOut:
		t.emit(Event{Kind: EventTimeout, Attempt: o.Attempts, Err: o.Err})
	case StateCancelled:
		t.emit(Event{Kind: EventCancel, Attempt: o.Attempts, Err: o.Err})
	default:
		t.log.Debug("Transaction failed", "error", o.Err)
		t.emit(Event{Kind: EventFailed, Attempt: o.Attempts, Err: o.Err})
	}
	close(t.stopped)
	return true
}

func (t *Transaction) emit(e Event) {
	e.Transaction = t.name
	t.log.Debug("Transaction event", "event", string(e.Kind), "try", e.Attempt)
	if t.observer != nil {
		t.observer(e)
	}
}

var _ ChangeTracker = (*changes.Tracker)(nil)
