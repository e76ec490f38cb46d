// Package inmemory contains a process local DocumentStore with CouchDB style revisions.
// It backs the development server and the tests.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sharedcode/doctxn"
)

// Store keeps documents per collection. Stored documents are cloned on the way in and
// out so callers never share maps with the store. Safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]doctxn.Document
	// AutoCreate makes Write create a missing collection instead of failing with ErrNotFound.
	AutoCreate bool
}

// NewStore returns an empty store creating collections on first write.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]doctxn.Document),
		AutoCreate:  true,
	}
}

// ErrCollectionExists is returned by CreateCollection for a duplicate name.
var ErrCollectionExists = errors.New("collection already exists")

// CreateCollection adds an empty collection.
func (s *Store) CreateCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return ErrCollectionExists
	}
	s.collections[name] = make(map[string]doctxn.Document)
	return nil
}

// DropCollection removes a collection and its documents.
func (s *Store) DropCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("collection %q: %w", name, doctxn.ErrNotFound)
	}
	delete(s.collections, name)
	return nil
}

// HasCollection reports whether the collection exists.
func (s *Store) HasCollection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[name]
	return ok
}

// Collections lists collection names, sorted.
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collection])
}

// Get returns a copy of a stored document.
func (s *Store) Get(collection, id string) (doctxn.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, doctxn.ErrNotFound)
	}
	d, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("document %q in %q: %w", id, collection, doctxn.ErrNotFound)
	}
	return d.Clone()
}

// Put stores doc under doc["_id"] if expectedRev matches the current revision ("" when
// the document must not exist yet) and returns the new revision.
func (s *Store) Put(collection string, doc doctxn.Document, expectedRev string) (string, error) {
	id := doc.ID()
	if id == "" {
		return "", &doctxn.StoreError{Op: "put", Reason: "document has no _id"}
	}
	stored, err := doc.Clone()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		if !s.AutoCreate {
			return "", fmt.Errorf("collection %q: %w", collection, doctxn.ErrNotFound)
		}
		c = make(map[string]doctxn.Document)
		s.collections[collection] = c
	}
	current, exists := c[id]
	currentRev := ""
	if exists {
		currentRev = current.Rev()
	}
	if currentRev != expectedRev {
		return "", &doctxn.ConflictError{Rev: expectedRev, Status: 409}
	}
	rev := doctxn.NextRev(currentRev)
	stored[doctxn.FieldRev] = rev
	c[id] = stored
	return rev, nil
}

// Fetch implements doctxn.DocumentStore.
func (s *Store) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Get(loc.Collection(), loc.DocumentID())
}

// Write implements doctxn.DocumentStore.
func (s *Store) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, expectedRev string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc.ID() != loc.DocumentID() {
		return "", &doctxn.StoreError{Op: "write", Reason: fmt.Sprintf("_id %q does not match locator id %q", doc.ID(), loc.DocumentID())}
	}
	rev, err := s.Put(loc.Collection(), doc, expectedRev)
	var ce *doctxn.ConflictError
	if errors.As(err, &ce) {
		ce.Locator = loc
	}
	return rev, err
}
