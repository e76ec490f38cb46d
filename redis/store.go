// Package redis stores documents as JSON strings in Redis and guards writes with
// WATCH/MULTI so a stale revision never overwrites a newer one.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/encoding"
)

// Store is a doctxn.DocumentStore keyed by <KeyPrefix><collection>:<id>.
type Store struct {
	conn    *Connection
	isOwner bool
}

// errRevMismatch aborts a WATCH transaction whose expected revision is stale.
var errRevMismatch = errors.New("revision mismatch")

// NewStore returns a Store on the singleton connection opened with OpenConnection.
func NewStore() (*Store, error) {
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil, fmt.Errorf("Redis connection is not open, can't create new store")
	}
	return &Store{conn: connection}, nil
}

// Opens a new Redis connection then returns a store wrapper for it.
// Returned store has "Close" method you can call when you don't need it anymore.
func NewConnectionStore(options Options) (*Store, error) {
	c, err := openConnection(options)
	if err != nil {
		return nil, err
	}
	return &Store{
		conn:    c,
		isOwner: true,
	}, nil
}

// Close this store's connection, if it owns it.
func (s *Store) Close() error {
	if !s.isOwner || s.conn == nil {
		return nil
	}
	err := closeConnection(s.conn)
	s.conn = nil
	return err
}

// Ping tests connectivity for redis (PONG should be returned).
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return fmt.Errorf("Redis connection is not open")
	}
	return s.conn.Client.Ping(ctx).Err()
}

// Key returns the Redis key holding the document loc names.
func (s *Store) Key(loc doctxn.Locator) string {
	return s.conn.Options.KeyPrefix + loc.Collection() + ":" + loc.DocumentID()
}

// Fetch implements doctxn.DocumentStore.
func (s *Store) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	ba, err := s.conn.Client.Get(ctx, s.Key(loc)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", loc, doctxn.ErrNotFound)
		}
		return nil, &doctxn.StoreError{Op: "fetch", Err: err}
	}
	var doc doctxn.Document
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &doc); err != nil {
		return nil, &doctxn.StoreError{Op: "fetch", Reason: "bad document value", Err: err}
	}
	return doc, nil
}

// Write implements doctxn.DocumentStore. The key is watched while its current revision
// is compared to expectedRev; a concurrent change makes EXEC fail, reported as a conflict.
func (s *Store) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, expectedRev string) (string, error) {
	key := s.Key(loc)
	var newRev string
	err := s.conn.Client.Watch(ctx, func(tx *redis.Tx) error {
		currentRev := ""
		ba, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var cur doctxn.Document
			if err := encoding.DefaultMarshaler.Unmarshal(ba, &cur); err != nil {
				return err
			}
			currentRev = cur.Rev()
		}
		if currentRev != expectedRev {
			return errRevMismatch
		}

		newRev = doctxn.NextRev(currentRev)
		stored := make(doctxn.Document, len(doc))
		for k, v := range doc {
			stored[k] = v
		}
		stored[doctxn.FieldRev] = newRev
		out, err := encoding.DefaultMarshaler.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return newRev, nil
	case errors.Is(err, errRevMismatch), errors.Is(err, redis.TxFailedErr):
		return "", &doctxn.ConflictError{Locator: loc, Rev: expectedRev, Status: 409}
	}
	return "", &doctxn.StoreError{Op: "write", Err: err}
}

// Delete removes the document loc names. Used by tools and tests to reset state.
func (s *Store) Delete(ctx context.Context, loc doctxn.Locator) error {
	return s.conn.Client.Del(ctx, s.Key(loc)).Err()
}
