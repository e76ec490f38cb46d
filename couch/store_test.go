package couch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/couch"
	"github.com/sharedcode/doctxn/inmemory"
	"github.com/sharedcode/doctxn/rest_api"
)

const testDB = "txn_test"

func newServer(t *testing.T) (*httptest.Server, *couch.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := inmemory.NewStore()
	mem.AutoCreate = false
	srv := httptest.NewServer(rest_api.NewRouter(mem))
	t.Cleanup(srv.Close)

	s := couch.NewStoreWithClient(srv.Client())
	ctx := context.Background()
	require.NoError(t, s.DeleteDB(ctx, srv.URL, testDB))
	require.NoError(t, s.CreateDB(ctx, srv.URL, testDB))
	_, _, err := s.Post(ctx, srv.URL, testDB, doctxn.Document{"_id": "doc_a", "val": 23})
	require.NoError(t, err)
	return srv, s
}

func plus(x float64) doctxn.Mutation {
	return func(_ context.Context, doc doctxn.Document) (doctxn.Document, error) {
		v, ok := doc["val"].(float64)
		if !ok {
			return nil, errors.New("No value")
		}
		doc["val"] = v + x
		return nil, nil
	}
}

func fast() doctxn.Options {
	o := doctxn.DefaultOptions()
	o.BaseDelay = time.Millisecond
	return o
}

func TestUpdateThroughHTTP(t *testing.T) {
	srv, s := newServer(t)
	c := doctxn.NewClient(s, doctxn.WithOptions(fast()))
	ctx := context.Background()

	doc, err := c.Do(ctx, doctxn.ByURL(srv.URL+"/"+testDB+"/doc_a"), plus(3))
	require.NoError(t, err)
	assert.Equal(t, float64(26), doc["val"])

	doc, err = c.Do(ctx, doctxn.ByID(srv.URL, testDB, "doc_a"), plus(6))
	require.NoError(t, err)
	assert.Equal(t, float64(32), doc["val"])

	loc, _ := doctxn.NewLocator(doctxn.LocatorSpec{Couch: srv.URL, DB: testDB, ID: "doc_a"})
	stored, err := s.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, doc.Rev(), stored.Rev())
	assert.Equal(t, float64(32), stored["val"])
}

func TestWriteConflict(t *testing.T) {
	srv, s := newServer(t)
	ctx := context.Background()
	loc, _ := doctxn.NewLocator(doctxn.LocatorSpec{Couch: srv.URL, DB: testDB, ID: "doc_a"})

	doc, err := s.Fetch(ctx, loc)
	require.NoError(t, err)
	rev := doc.Rev()
	_, err = s.Write(ctx, loc, doc, rev)
	require.NoError(t, err)

	_, err = s.Write(ctx, loc, doc, rev)
	var ce *doctxn.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusConflict, ce.Status)
	assert.True(t, doctxn.IsConflict(err))
}

func TestFetchMissing(t *testing.T) {
	srv, s := newServer(t)
	loc, _ := doctxn.NewLocator(doctxn.LocatorSpec{Couch: srv.URL, DB: testDB, ID: "nope"})
	_, err := s.Fetch(context.Background(), loc)
	assert.True(t, doctxn.IsNotFound(err))

	c := doctxn.NewClient(s, doctxn.WithOptions(fast()))
	opts := fast()
	opts.Create = true
	req := doctxn.ByID(srv.URL, testDB, "nope")
	req.Options = &opts
	doc, err := c.Do(context.Background(), req, func(_ context.Context, d doctxn.Document) (doctxn.Document, error) {
		d["val"] = 1
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "nope", doc.ID())
	assert.NotEmpty(t, doc.Rev())
}

func TestServerErrorIsNotAConflict(t *testing.T) {
	var writes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"_id": "doc_a", "_rev": "1-a", "val": 1}`))
		default:
			writes.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": "unknown_error", "reason": "disk full"}`))
		}
	}))
	defer srv.Close()

	c := doctxn.NewClient(couch.NewStoreWithClient(srv.Client()), doctxn.WithOptions(fast()))
	_, err := c.Do(context.Background(), doctxn.ByID(srv.URL, "db", "doc_a"), plus(1))
	var se *doctxn.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Contains(t, se.Reason, "disk full")
	assert.Equal(t, doctxn.WriteFailure, doctxn.CodeOf(err))
	assert.EqualValues(t, 1, writes.Load())
}

func TestConflictStatusWithoutConflictBodyIsFatal(t *testing.T) {
	for name, body := range map[string]string{
		"empty":     "",
		"not json":  "busy",
		"other err": `{"error": "file_exists", "reason": "The file already exists."}`,
	} {
		t.Run(name, func(t *testing.T) {
			var writes atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					w.Write([]byte(`{"_id": "doc_a", "_rev": "1-a", "val": 1}`))
					return
				}
				writes.Add(1)
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c := doctxn.NewClient(couch.NewStoreWithClient(srv.Client()), doctxn.WithOptions(fast()))
			_, err := c.Do(context.Background(), doctxn.ByID(srv.URL, "db", "doc_a"), plus(1))
			require.Error(t, err)
			assert.False(t, doctxn.IsConflict(err))
			var se *doctxn.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusConflict, se.Status)
			assert.Equal(t, doctxn.WriteFailure, doctxn.CodeOf(err))
			assert.EqualValues(t, 1, writes.Load())
		})
	}
}

func TestConflictsExhaustAgainstServer(t *testing.T) {
	var writes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"_id": "doc_a", "_rev": "1-a", "val": 1}`))
			return
		}
		writes.Add(1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "conflict", "reason": "Document update conflict."}`))
	}))
	defer srv.Close()

	opts := fast()
	opts.MaxAttempts = 3
	c := doctxn.NewClient(couch.NewStoreWithClient(srv.Client()), doctxn.WithOptions(opts))
	_, err := c.Do(context.Background(), doctxn.ByID(srv.URL, "db", "doc_a"), plus(1))
	var ee *doctxn.ExhaustedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Attempts)
	assert.EqualValues(t, 3, writes.Load())
}

func TestBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized", "reason": "Name or password is incorrect."}`))
			return
		}
		w.Write([]byte(`{"_id": "doc_a", "_rev": "1-a"}`))
	}))
	defer srv.Close()
	loc, _ := doctxn.NewLocator(doctxn.LocatorSpec{Couch: srv.URL, DB: "db", ID: "doc_a"})

	_, err := couch.NewStore(doctxn.CouchConfig{}).Fetch(context.Background(), loc)
	var se *doctxn.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)

	doc, err := couch.NewStore(doctxn.CouchConfig{Username: "admin", Password: "pw"}).Fetch(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, "1-a", doc.Rev())
}
