package doctxn

import (
	"context"
	log "log/slog"

	"github.com/sharedcode/doctxn/changes"
)

// Option customizes a Client or a Transaction.
type Option func(*settings)

type settings struct {
	options  Options
	tracker  ChangeTracker
	observer Observer
	logger   *log.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		options: DefaultOptions(),
		tracker: changes.NewTracker(),
		logger:  log.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(&s)
		}
	}
	return s
}

// WithOptions sets the transaction options.
func WithOptions(o Options) Option {
	return func(s *settings) { s.options = o }
}

// WithTracker replaces the change tracker.
func WithTracker(t ChangeTracker) Option {
	return func(s *settings) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithObserver registers an observer for transaction events.
func WithObserver(o Observer) Option {
	return func(s *settings) { s.observer = o }
}

// WithLogger sets the logger transactions derive their loggers from.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Request names a document to update, optionally with per call options.
type Request struct {
	LocatorSpec
	// Options, when set, replaces the client's options for this request.
	Options *Options
}

// ByURL returns a Request addressing a document by its direct URL.
func ByURL(url string) Request {
	return Request{LocatorSpec: LocatorSpec{URL: url}}
}

// ByID returns a Request addressing a document by store root, database and id.
func ByID(couch, db, id string) Request {
	return Request{LocatorSpec: LocatorSpec{Couch: couch, DB: db, ID: id}}
}

// Callback receives the single result of Client.Update: the final document, or an error
// for every outcome other than done (see IsTimeout and IsConflict).
type Callback func(doc Document, err error)

// Client runs transactions against one DocumentStore.
type Client struct {
	store    DocumentStore
	settings settings
	opts     []Option
}

// NewClient returns a Client for store.
func NewClient(store DocumentStore, opts ...Option) *Client {
	return &Client{
		store:    store,
		settings: newSettings(opts),
		opts:     opts,
	}
}

// Options returns the client's default transaction options.
func (c *Client) Options() Options {
	return c.settings.options
}

// Transaction validates req and mutation and prepares, without starting, a Transaction.
func (c *Client) Transaction(req Request, mutation Mutation) (*Transaction, error) {
	loc, err := NewLocator(req.LocatorSpec)
	if err != nil {
		return nil, err
	}
	if mutation == nil {
		return nil, &ConfigurationError{Constraint: ConstraintMutationRequired, Detail: "data operation required"}
	}
	if c.store == nil {
		return nil, &ConfigurationError{Constraint: ConstraintStoreRequired, Detail: "document store required"}
	}
	opts := c.settings.options
	if req.Options != nil {
		opts = *req.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	all := make([]Option, 0, len(c.opts)+1)
	all = append(all, c.opts...)
	all = append(all, WithOptions(opts))
	return NewTransaction(c.store, loc, mutation, all...), nil
}

// Update starts a transaction and calls callback exactly once with its result.
// Invalid input fails synchronously with a *ConfigurationError before any I/O.
func (c *Client) Update(ctx context.Context, req Request, mutation Mutation, callback Callback) (*Transaction, error) {
	if callback == nil {
		return nil, &ConfigurationError{Constraint: ConstraintCallbackRequired, Detail: "need callback"}
	}
	t, err := c.Transaction(req, mutation)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	go func() {
		<-t.Done()
		callback(t.Outcome().Result())
	}()
	return t, nil
}

// Do runs a transaction to completion and returns its result.
func (c *Client) Do(ctx context.Context, req Request, mutation Mutation) (Document, error) {
	t, err := c.Transaction(req, mutation)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}
	<-t.Done()
	return t.Outcome().Result()
}

// UpdateMany runs one independent transaction per request, at most maxConcurrency at a
// time, and returns their outcomes in request order. All requests are validated up front;
// one invalid request fails the call before any transaction starts.
func (c *Client) UpdateMany(ctx context.Context, reqs []Request, mutation Mutation, maxConcurrency int) ([]Outcome, error) {
	txns := make([]*Transaction, len(reqs))
	for i, req := range reqs {
		t, err := c.Transaction(req, mutation)
		if err != nil {
			return nil, err
		}
		txns[i] = t
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	outcomes := make([]Outcome, len(reqs))
	tr := NewTaskRunner(ctx, maxConcurrency)
	for i, t := range txns {
		tr.Go(func() error {
			if err := t.Start(tr.GetContext()); err != nil {
				return err
			}
			<-t.Done()
			outcomes[i] = t.Outcome()
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
