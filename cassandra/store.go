// Package cassandra stores documents in Cassandra, one table per collection, and writes
// them with lightweight transactions so a stale revision is never applied.
package cassandra

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"github.com/gocql/gocql"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/encoding"
)

// Store is a doctxn.DocumentStore on a Cassandra connection.
type Store struct {
	conn *Connection
}

// NewStore returns a Store on the global connection.
func NewStore() (*Store, error) {
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil, fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
	}
	return &Store{conn: connection}, nil
}

// TableName maps a collection name to its table. Cassandra identifiers allow letters,
// digits and underscores only, so every other rune becomes an underscore.
func TableName(collection string) string {
	var b strings.Builder
	b.WriteString("d_")
	for _, r := range strings.ToLower(collection) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

func createTableStatement(keyspace, table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (id text PRIMARY KEY, rev text, body text);", keyspace, table)
}

func selectStatement(keyspace, table string) string {
	return fmt.Sprintf("SELECT rev, body FROM %s.%s WHERE id = ?;", keyspace, table)
}

func insertStatement(keyspace, table string) string {
	return fmt.Sprintf("INSERT INTO %s.%s (id, rev, body) VALUES(?,?,?) IF NOT EXISTS;", keyspace, table)
}

func updateStatement(keyspace, table string) string {
	return fmt.Sprintf("UPDATE %s.%s SET rev = ?, body = ? WHERE id = ? IF rev = ?;", keyspace, table)
}

// CreateCollection creates the table backing collection if missing.
func (s *Store) CreateCollection(ctx context.Context, collection string) error {
	return s.conn.Session.Query(createTableStatement(s.conn.Keyspace, TableName(collection))).WithContext(ctx).Exec()
}

// Fetch implements doctxn.DocumentStore.
func (s *Store) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	qry := s.conn.Session.Query(selectStatement(s.conn.Keyspace, TableName(loc.Collection())), loc.DocumentID()).WithContext(ctx)
	if s.conn.ConsistencyBook.DocumentGet > gocql.Any {
		qry.Consistency(s.conn.ConsistencyBook.DocumentGet)
	}
	var rev, body string
	if err := qry.Scan(&rev, &body); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", loc, doctxn.ErrNotFound)
		}
		return nil, &doctxn.StoreError{Op: "fetch", Err: err}
	}
	return decodeRow(rev, body)
}

// Write implements doctxn.DocumentStore. A create uses INSERT IF NOT EXISTS and an update
// uses UPDATE IF rev = expectedRev; a condition that is not applied is a conflict.
func (s *Store) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, expectedRev string) (string, error) {
	body, err := encodeBody(doc)
	if err != nil {
		return "", &doctxn.StoreError{Op: "write", Reason: "can't encode document", Err: err}
	}
	table := TableName(loc.Collection())
	newRev := doctxn.NextRev(expectedRev)

	var qry *gocql.Query
	if expectedRev == "" {
		qry = s.conn.Session.Query(insertStatement(s.conn.Keyspace, table), loc.DocumentID(), newRev, body)
	} else {
		qry = s.conn.Session.Query(updateStatement(s.conn.Keyspace, table), newRev, body, loc.DocumentID(), expectedRev)
	}
	qry = qry.WithContext(ctx)
	if s.conn.ConsistencyBook.DocumentWrite > gocql.Any {
		qry.Consistency(s.conn.ConsistencyBook.DocumentWrite)
	}
	// MapScanCAS fills the current row when the condition was not applied.
	current := map[string]any{}
	applied, err := qry.MapScanCAS(current)
	if err != nil {
		return "", &doctxn.StoreError{Op: "write", Err: err}
	}
	if !applied {
		log.Debug("cassandra conditional write not applied", "id", loc.DocumentID(), "expected", expectedRev, "current", current["rev"])
		return "", &doctxn.ConflictError{Locator: loc, Rev: expectedRev, Status: 409}
	}
	return newRev, nil
}

// encodeBody serializes doc without its revision, which lives in its own column.
func encodeBody(doc doctxn.Document) (string, error) {
	out := make(doctxn.Document, len(doc))
	for k, v := range doc {
		if k == doctxn.FieldRev {
			continue
		}
		out[k] = v
	}
	ba, err := encoding.DefaultMarshaler.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(ba), nil
}

func decodeRow(rev, body string) (doctxn.Document, error) {
	var doc doctxn.Document
	if err := encoding.DefaultMarshaler.Unmarshal([]byte(body), &doc); err != nil {
		return nil, &doctxn.StoreError{Op: "fetch", Reason: "bad document body", Err: err}
	}
	if doc == nil {
		doc = doctxn.Document{}
	}
	doc[doctxn.FieldRev] = rev
	return doc, nil
}
