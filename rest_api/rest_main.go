// Package rest_api serves a CouchDB compatible subset over the in-memory store, enough for
// the couch client and the txn tool to run without a real CouchDB.
package rest_api

import (
	log "log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/doctxn/inmemory"
)

// TokenEnvVar names the environment variable holding the bearer token the server
// requires. Requests are not checked when it is empty.
const TokenEnvVar = "COUCHMEM_TOKEN"

// NewRouter creates the HTTP router serving store. Collections are CouchDB databases;
// writing to a missing one fails with 404 unless store.AutoCreate is set.
func NewRouter(store *inmemory.Store) *gin.Engine {
	token := os.Getenv(TokenEnvVar)

	// Simple closure for header token verification.
	verifyHeaderToken := func(realHandler func(c *gin.Context)) func(c *gin.Context) {
		return func(c *gin.Context) {
			if verify(c, token) {
				realHandler(c)
			}
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := NewDatabasesRestApi(store)
	r := NewRegistry()
	r.RegisterMethod(GET, "/", api.Welcome)
	r.RegisterMethod(GET, "/_all_dbs", api.GetDatabases)
	r.RegisterMethod(GET, "/:db", api.GetDatabase)
	r.RegisterMethod(PUT, "/:db", api.CreateDatabase)
	r.RegisterMethod(DELETE, "/:db", api.DeleteDatabase)
	r.RegisterMethod(POST, "/:db", api.PostDocument)
	r.RegisterMethod(GET, "/:db/:id", api.GetDocument)
	r.RegisterMethod(PUT, "/:db/:id", api.PutDocument)
	r.Mount(router, verifyHeaderToken)

	return router
}

// Main runs the dev server on addr until the process is stopped.
func Main(addr string, store *inmemory.Store) error {
	log.Info("couchmem listening", "addr", addr)
	return NewRouter(store).Run(addr)
}

// Verify the bearer token in header.
func verify(c *gin.Context, token string) bool {
	if token == "" {
		return true
	}
	h := c.Request.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") && strings.TrimPrefix(h, "Bearer ") == token {
		return true
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, couchError{Error: "unauthorized", Reason: "Name or password is incorrect."})
	return false
}
