package cassandra

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/doctxn"
)

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"txn_test": "d_txn_test",
		"Orders":   "d_orders",
		"a-b/c$d":  "d_a_b_c_d",
	}
	for in, want := range tests {
		if got := TableName(in); got != want {
			t.Errorf("TableName(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestStatements(t *testing.T) {
	if s := insertStatement("ks", "d_a"); !strings.HasSuffix(s, "IF NOT EXISTS;") || !strings.Contains(s, "ks.d_a") {
		t.Errorf("unexpected insert %q", s)
	}
	if s := updateStatement("ks", "d_a"); !strings.HasSuffix(s, "IF rev = ?;") {
		t.Errorf("unexpected update %q", s)
	}
}

func TestBodyRoundTrip(t *testing.T) {
	body, err := encodeBody(doctxn.Document{"_id": "a", "_rev": "1-x", "val": 23})
	if err != nil {
		t.Fatalf("encodeBody failed, details: %v", err)
	}
	if strings.Contains(body, "_rev") {
		t.Fatalf("revision stored in body: %s", body)
	}
	doc, err := decodeRow("2-y", body)
	if err != nil {
		t.Fatalf("decodeRow failed, details: %v", err)
	}
	if doc.Rev() != "2-y" || doc.ID() != "a" || doc["val"] != float64(23) {
		t.Fatalf("unexpected document %v", doc)
	}
	if _, err := decodeRow("1-x", "{"); err == nil {
		t.Fatalf("expected error for a bad body")
	}
}

func TestConfigFromDoctxn(t *testing.T) {
	c := doctxn.DefaultConfig().Cassandra
	c.Username = "cassandra"
	cfg, err := ConfigFromDoctxn(c)
	if err != nil {
		t.Fatalf("ConfigFromDoctxn failed, details: %v", err)
	}
	if cfg.Consistency != gocql.LocalQuorum || cfg.Keyspace != "doctxn" || cfg.Authenticator == nil {
		t.Fatalf("unexpected config %+v", cfg)
	}
	c.Consistency = "SOMETIMES"
	if _, err := ConfigFromDoctxn(c); err == nil {
		t.Fatalf("expected error for a bad consistency")
	}
}

// Runs against a live cluster named by CASSANDRA_HOSTS (comma separated).
func TestTransactionOverCassandra(t *testing.T) {
	hosts := os.Getenv("CASSANDRA_HOSTS")
	if hosts == "" {
		t.Skip("CASSANDRA_HOSTS not set")
	}
	if _, err := OpenConnection(Config{ClusterHosts: strings.Split(hosts, ","), Consistency: gocql.One}); err != nil {
		t.Fatalf("OpenConnection failed, details: %v", err)
	}
	defer CloseConnection()
	s, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed, details: %v", err)
	}
	ctx := context.Background()
	if err := s.CreateCollection(ctx, "txn_test"); err != nil {
		t.Fatalf("CreateCollection failed, details: %v", err)
	}
	id := doctxn.NewHash()
	loc, _ := doctxn.NewLocator(doctxn.LocatorSpec{Couch: "cassandra://", DB: "txn_test", ID: id})
	rev, err := s.Write(ctx, loc, doctxn.Document{"_id": id, "val": 23}, "")
	if err != nil {
		t.Fatalf("Write failed, details: %v", err)
	}
	if _, err := s.Write(ctx, loc, doctxn.Document{"_id": id}, ""); !doctxn.IsConflict(err) {
		t.Fatalf("got %v, expected conflict", err)
	}

	opts := doctxn.DefaultOptions()
	opts.BaseDelay = time.Millisecond
	c := doctxn.NewClient(s, doctxn.WithOptions(opts))
	doc, err := c.Do(ctx, doctxn.ByID("cassandra://", "txn_test", id), func(_ context.Context, d doctxn.Document) (doctxn.Document, error) {
		d["val"] = d["val"].(float64) + 3
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Do failed, details: %v", err)
	}
	if doc["val"] != float64(26) || doc.Rev() == rev {
		t.Fatalf("unexpected document %v", doc)
	}
}
