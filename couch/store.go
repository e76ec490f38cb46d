// Package couch talks to CouchDB over its HTTP document API.
package couch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/encoding"
)

// Store is a doctxn.DocumentStore backed by CouchDB. Documents are addressed by the
// Locator's direct address, so one Store serves any number of servers.
type Store struct {
	client   *http.Client
	username string
	password string
}

// NewStore returns a Store configured from c. Only the credentials and request timeout
// are used; the server root comes from each Locator.
func NewStore(c doctxn.CouchConfig) *Store {
	return &Store{
		client:   &http.Client{Timeout: c.RequestTimeout},
		username: c.Username,
		password: c.Password,
	}
}

// NewStoreWithClient returns a Store using client, e.g. one from httptest.
func NewStoreWithClient(client *http.Client) *Store {
	return &Store{client: client}
}

// couchError is CouchDB's error body, {"error": "...", "reason": "..."}.
type couchError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type docResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

// Fetch implements doctxn.DocumentStore.
func (s *Store) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	status, body, err := s.do(ctx, http.MethodGet, loc.Address(), nil)
	if err != nil {
		return nil, &doctxn.StoreError{Op: "fetch", Err: err}
	}
	switch status {
	case http.StatusOK:
		var doc doctxn.Document
		if err := encoding.DefaultMarshaler.Unmarshal(body, &doc); err != nil {
			return nil, &doctxn.StoreError{Op: "fetch", Status: status, Reason: "bad document body", Err: err}
		}
		return doc, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", loc, doctxn.ErrNotFound)
	}
	return nil, storeError("fetch", status, body)
}

// Write implements doctxn.DocumentStore. CouchDB checks the body's _rev against the
// current revision; it is set from expectedRev.
func (s *Store) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, expectedRev string) (string, error) {
	out := make(doctxn.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	if expectedRev != "" {
		out[doctxn.FieldRev] = expectedRev
	} else {
		delete(out, doctxn.FieldRev)
	}
	ba, err := encoding.DefaultMarshaler.Marshal(out)
	if err != nil {
		return "", &doctxn.StoreError{Op: "write", Reason: "can't encode document", Err: err}
	}
	status, body, err := s.do(ctx, http.MethodPut, loc.Address(), ba)
	if err != nil {
		return "", &doctxn.StoreError{Op: "write", Err: err}
	}
	switch status {
	case http.StatusCreated, http.StatusAccepted:
		var r docResult
		if err := encoding.DefaultMarshaler.Unmarshal(body, &r); err != nil || r.Rev == "" {
			return "", &doctxn.StoreError{Op: "write", Status: status, Reason: "bad write response: " + string(body), Err: err}
		}
		return r.Rev, nil
	case http.StatusConflict:
		var ce couchError
		_ = encoding.DefaultMarshaler.Unmarshal(body, &ce)
		if ce.Error == "conflict" {
			return "", &doctxn.ConflictError{Locator: loc, Rev: expectedRev, Status: status}
		}
	case http.StatusNotFound:
		return "", fmt.Errorf("%s: %w", loc, doctxn.ErrNotFound)
	}
	return "", storeError("write", status, body)
}

// CreateDB creates database db on the server at root. An existing database is not an error.
func (s *Store) CreateDB(ctx context.Context, root, db string) error {
	status, body, err := s.do(ctx, http.MethodPut, dbAddress(root, db), nil)
	if err != nil {
		return &doctxn.StoreError{Op: "create_db", Err: err}
	}
	switch status {
	case http.StatusCreated, http.StatusAccepted, http.StatusPreconditionFailed:
		return nil
	}
	return storeError("create_db", status, body)
}

// DeleteDB deletes database db on the server at root. A missing database is not an error.
func (s *Store) DeleteDB(ctx context.Context, root, db string) error {
	status, body, err := s.do(ctx, http.MethodDelete, dbAddress(root, db), nil)
	if err != nil {
		return &doctxn.StoreError{Op: "delete_db", Err: err}
	}
	switch status {
	case http.StatusOK, http.StatusAccepted, http.StatusNotFound:
		return nil
	}
	return storeError("delete_db", status, body)
}

// Post creates doc in database db, letting the server assign an id when doc has none.
// It returns the document's id and first revision.
func (s *Store) Post(ctx context.Context, root, db string, doc doctxn.Document) (string, string, error) {
	ba, err := encoding.DefaultMarshaler.Marshal(doc)
	if err != nil {
		return "", "", &doctxn.StoreError{Op: "post", Reason: "can't encode document", Err: err}
	}
	status, body, err := s.do(ctx, http.MethodPost, dbAddress(root, db), ba)
	if err != nil {
		return "", "", &doctxn.StoreError{Op: "post", Err: err}
	}
	switch status {
	case http.StatusCreated, http.StatusAccepted:
		var r docResult
		if err := encoding.DefaultMarshaler.Unmarshal(body, &r); err != nil {
			return "", "", &doctxn.StoreError{Op: "post", Status: status, Reason: "bad post response", Err: err}
		}
		return r.ID, r.Rev, nil
	case http.StatusConflict:
		return "", "", &doctxn.ConflictError{Status: status}
	}
	return "", "", storeError("post", status, body)
}

func dbAddress(root, db string) string {
	return strings.TrimRight(root, "/") + "/" + url.PathEscape(db)
}

func (s *Store) do(ctx context.Context, method, address string, body []byte) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, address, r)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	ba, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	log.Debug("couch request", "method", method, "url", address, "status", resp.StatusCode)
	return resp.StatusCode, ba, nil
}

func storeError(op string, status int, body []byte) error {
	var ce couchError
	if err := encoding.DefaultMarshaler.Unmarshal(body, &ce); err != nil || ce.Error == "" {
		return &doctxn.StoreError{Op: op, Status: status, Reason: strings.TrimSpace(string(body))}
	}
	return &doctxn.StoreError{Op: op, Status: status, Reason: ce.Error + ": " + ce.Reason}
}
