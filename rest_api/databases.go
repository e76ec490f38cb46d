package rest_api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/inmemory"
)

// couchError is CouchDB's error body.
type couchError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// docResult is CouchDB's body for a successful document write.
type docResult struct {
	OK  bool   `json:"ok"`
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

type databasesRestApi struct {
	store *inmemory.Store
}

func NewDatabasesRestApi(store *inmemory.Store) *databasesRestApi {
	return &databasesRestApi{store: store}
}

// Welcome godoc
// @Summary Welcome returns the server banner
// @Produce json
// @Success 200 {object} map[string]any
// @Router / [get]
func (a *databasesRestApi) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"couchdb": "Welcome", "vendor": gin.H{"name": "couchmem"}, "version": doctxn.Version})
}

// GetDatabases godoc
// @Summary GetDatabases returns list of databases
// @Produce json
// @Success 200 {object} []string
// @Router /_all_dbs [get]
func (a *databasesRestApi) GetDatabases(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.Collections())
}

// GetDatabase godoc
// @Summary GetDatabase returns database info
// @Produce json
// @Failure 404 {object} couchError
// @Success 200 {object} map[string]any
// @Router /{db} [get]
func (a *databasesRestApi) GetDatabase(c *gin.Context) {
	db := c.Param("db")
	if !a.store.HasCollection(db) {
		c.JSON(http.StatusNotFound, couchError{Error: "not_found", Reason: "Database does not exist."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"db_name": db, "doc_count": a.store.Count(db)})
}

// CreateDatabase godoc
// @Summary CreateDatabase creates an empty database
// @Produce json
// @Failure 412 {object} couchError
// @Success 201 {object} map[string]any
// @Router /{db} [put]
func (a *databasesRestApi) CreateDatabase(c *gin.Context) {
	if err := a.store.CreateCollection(c.Param("db")); err != nil {
		c.JSON(http.StatusPreconditionFailed, couchError{Error: "file_exists", Reason: "The database could not be created, the file already exists."})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// DeleteDatabase godoc
// @Summary DeleteDatabase drops a database and its documents
// @Produce json
// @Failure 404 {object} couchError
// @Success 200 {object} map[string]any
// @Router /{db} [delete]
func (a *databasesRestApi) DeleteDatabase(c *gin.Context) {
	if err := a.store.DropCollection(c.Param("db")); err != nil {
		c.JSON(http.StatusNotFound, couchError{Error: "not_found", Reason: "Database does not exist."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PostDocument godoc
// @Summary PostDocument creates a document, generating its id when the body has none
// @Accept json
// @Produce json
// @Failure 409 {object} couchError
// @Success 201 {object} docResult
// @Router /{db} [post]
func (a *databasesRestApi) PostDocument(c *gin.Context) {
	var doc doctxn.Document
	if err := c.ShouldBindJSON(&doc); err != nil || doc == nil {
		c.JSON(http.StatusBadRequest, couchError{Error: "bad_request", Reason: "Document must be a JSON object"})
		return
	}
	if doc.ID() == "" {
		doc[doctxn.FieldID] = doctxn.NewHash()
	}
	a.write(c, doc)
}

// GetDocument godoc
// @Summary GetDocument returns the latest revision of a document
// @Produce json
// @Failure 404 {object} couchError
// @Success 200 {object} map[string]any
// @Router /{db}/{id} [get]
func (a *databasesRestApi) GetDocument(c *gin.Context) {
	doc, err := a.store.Get(c.Param("db"), c.Param("id"))
	if err != nil {
		reason := "missing"
		if !a.store.HasCollection(c.Param("db")) {
			reason = "Database does not exist."
		}
		c.JSON(http.StatusNotFound, couchError{Error: "not_found", Reason: reason})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PutDocument godoc
// @Summary PutDocument creates or updates a document. Updates must carry the current _rev.
// @Accept json
// @Produce json
// @Failure 409 {object} couchError
// @Success 201 {object} docResult
// @Router /{db}/{id} [put]
func (a *databasesRestApi) PutDocument(c *gin.Context) {
	var doc doctxn.Document
	if err := c.ShouldBindJSON(&doc); err != nil || doc == nil {
		c.JSON(http.StatusBadRequest, couchError{Error: "bad_request", Reason: "Document must be a JSON object"})
		return
	}
	id := c.Param("id")
	if doc.ID() != "" && doc.ID() != id {
		c.JSON(http.StatusBadRequest, couchError{Error: "bad_request", Reason: "Document id must match the URL"})
		return
	}
	doc[doctxn.FieldID] = id
	if rev := c.Query("rev"); rev != "" && doc.Rev() == "" {
		doc[doctxn.FieldRev] = rev
	}
	a.write(c, doc)
}

func (a *databasesRestApi) write(c *gin.Context, doc doctxn.Document) {
	rev, err := a.store.Put(c.Param("db"), doc, doc.Rev())
	var ce *doctxn.ConflictError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, docResult{OK: true, ID: doc.ID(), Rev: rev})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, couchError{Error: "conflict", Reason: "Document update conflict."})
	case errors.Is(err, doctxn.ErrNotFound):
		c.JSON(http.StatusNotFound, couchError{Error: "not_found", Reason: "Database does not exist."})
	default:
		c.JSON(http.StatusInternalServerError, couchError{Error: "unknown_error", Reason: err.Error()})
	}
}
