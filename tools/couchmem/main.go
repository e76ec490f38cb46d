// Command couchmem runs an in-memory server speaking enough of the CouchDB HTTP API for
// txn and the couch package: databases, document GET/PUT/POST with revisions.
package main

import (
	"flag"
	"fmt"
	log "log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/inmemory"
	"github.com/sharedcode/doctxn/rest_api"
)

func main() {
	var (
		addr        string
		databases   string
		autoCreate  bool
		showVersion bool
		debug       bool
	)
	flag.StringVar(&addr, "addr", "localhost:5984", "Address to listen on")
	flag.StringVar(&databases, "db", "", "Comma separated databases to create on startup")
	flag.BoolVar(&autoCreate, "auto-create", false, "Create databases on first write instead of answering 404")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&debug, "debug", false, "Gin debug mode and debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("couchmem %s\n", doctxn.Version)
		return
	}
	doctxn.ConfigureLogging()
	if debug {
		doctxn.SetLogLevel(log.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	store := inmemory.NewStore()
	store.AutoCreate = autoCreate
	for _, db := range strings.Split(databases, ",") {
		if db = strings.TrimSpace(db); db == "" {
			continue
		}
		if err := store.CreateCollection(db); err != nil {
			log.Warn("can't create database", "db", db, "error", err)
		}
	}

	if err := rest_api.Main(addr, store); err != nil {
		log.Error("couchmem stopped", "error", err)
		os.Exit(1)
	}
}
