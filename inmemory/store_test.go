package inmemory

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/doctxn"
)

func mustLocator(t *testing.T, db, id string) doctxn.Locator {
	t.Helper()
	loc, err := doctxn.NewLocator(doctxn.LocatorSpec{Couch: "mem://", DB: db, ID: id})
	if err != nil {
		t.Fatalf("NewLocator failed, details: %v", err)
	}
	return loc
}

func TestPutAndFetch(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rev, err := s.Put("txn_test", doctxn.Document{"_id": "doc_a", "val": 23}, "")
	if err != nil {
		t.Fatalf("Put failed, details: %v", err)
	}
	if doctxn.RevGeneration(rev) != 1 {
		t.Fatalf("got rev %q, expected generation 1", rev)
	}
	doc, err := s.Fetch(ctx, mustLocator(t, "txn_test", "doc_a"))
	if err != nil {
		t.Fatalf("Fetch failed, details: %v", err)
	}
	if doc.Rev() != rev || doc["val"] != float64(23) {
		t.Fatalf("unexpected document %v", doc)
	}
	// Fetched copies are not shared with the store.
	doc["val"] = 0
	again, _ := s.Get("txn_test", "doc_a")
	if again["val"] != float64(23) {
		t.Fatalf("store document was mutated through a fetched copy")
	}
}

func TestWriteConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	loc := mustLocator(t, "txn_test", "doc_a")
	rev1, _ := s.Put("txn_test", doctxn.Document{"_id": "doc_a", "val": 1}, "")

	rev2, err := s.Write(ctx, loc, doctxn.Document{"_id": "doc_a", "val": 2}, rev1)
	if err != nil {
		t.Fatalf("Write failed, details: %v", err)
	}
	if doctxn.RevGeneration(rev2) != 2 {
		t.Fatalf("got rev %q, expected generation 2", rev2)
	}

	_, err = s.Write(ctx, loc, doctxn.Document{"_id": "doc_a", "val": 3}, rev1)
	if !doctxn.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var ce *doctxn.ConflictError
	if !errors.As(err, &ce) || ce.Locator.DocumentID() != "doc_a" {
		t.Fatalf("expected ConflictError carrying the locator, got %v", err)
	}

	// Creating an existing document conflicts too.
	if _, err := s.Write(ctx, loc, doctxn.Document{"_id": "doc_a"}, ""); !doctxn.IsConflict(err) {
		t.Fatalf("expected conflict on create of existing doc, got %v", err)
	}
}

func TestFetchMissing(t *testing.T) {
	s := NewStore()
	if _, err := s.Fetch(context.Background(), mustLocator(t, "nope", "x")); !doctxn.IsNotFound(err) {
		t.Fatalf("expected not found for missing collection, got %v", err)
	}
	_ = s.CreateCollection("db")
	if _, err := s.Fetch(context.Background(), mustLocator(t, "db", "x")); !doctxn.IsNotFound(err) {
		t.Fatalf("expected not found for missing doc, got %v", err)
	}
}

func TestCollections(t *testing.T) {
	s := NewStore()
	s.AutoCreate = false
	if _, err := s.Put("db", doctxn.Document{"_id": "a"}, ""); !doctxn.IsNotFound(err) {
		t.Fatalf("expected not found without AutoCreate, got %v", err)
	}
	if err := s.CreateCollection("db"); err != nil {
		t.Fatalf("CreateCollection failed, details: %v", err)
	}
	if err := s.CreateCollection("db"); !errors.Is(err, ErrCollectionExists) {
		t.Fatalf("expected ErrCollectionExists, got %v", err)
	}
	if _, err := s.Put("db", doctxn.Document{"_id": "a"}, ""); err != nil {
		t.Fatalf("Put failed, details: %v", err)
	}
	if s.Count("db") != 1 || len(s.Collections()) != 1 {
		t.Fatalf("unexpected collection state %v", s.Collections())
	}
	if err := s.DropCollection("db"); err != nil {
		t.Fatalf("DropCollection failed, details: %v", err)
	}
	if s.HasCollection("db") {
		t.Fatalf("collection still present after drop")
	}
}

func TestWriteRejectsMismatchedID(t *testing.T) {
	s := NewStore()
	_, err := s.Write(context.Background(), mustLocator(t, "db", "a"), doctxn.Document{"_id": "b"}, "")
	var se *doctxn.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
}
