package main

import (
	"context"
	"fmt"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/aws_s3"
	"github.com/sharedcode/doctxn/cassandra"
	"github.com/sharedcode/doctxn/couch"
	"github.com/sharedcode/doctxn/inmemory"
	"github.com/sharedcode/doctxn/redis"
)

// storeRoot is the locator root used with -db/-id when -couch is not given. Only the
// couch backend dereferences it; the others address documents by collection and id.
func storeRoot(cfg doctxn.Config) string {
	switch cfg.Backend {
	case doctxn.RedisBackend:
		return "redis://" + cfg.Redis.Address
	case doctxn.CassandraBackend:
		return "cassandra://" + cfg.Cassandra.Keyspace
	case doctxn.S3Backend:
		return "s3://" + cfg.S3.Region
	case doctxn.InMemoryBackend:
		return "mem://"
	}
	return cfg.Couch.URL
}

// openStore returns the configured DocumentStore and a function releasing it.
func openStore(ctx context.Context, cfg doctxn.Config, reqs []doctxn.Request) (doctxn.DocumentStore, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case doctxn.CouchBackend, "":
		return couch.NewStore(cfg.Couch), noop, nil

	case doctxn.InMemoryBackend:
		return inmemory.NewStore(), noop, nil

	case doctxn.RedisBackend:
		s, err := redis.NewConnectionStore(redis.OptionsFromConfig(cfg.Redis))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("can't reach redis, details: %w", err)
		}
		return s, func() { s.Close() }, nil

	case doctxn.CassandraBackend:
		cc, err := cassandra.ConfigFromDoctxn(cfg.Cassandra)
		if err != nil {
			return nil, nil, err
		}
		if _, err := cassandra.OpenConnection(cc); err != nil {
			return nil, nil, fmt.Errorf("can't connect to cassandra, details: %w", err)
		}
		s, err := cassandra.NewStore()
		if err != nil {
			cassandra.CloseConnection()
			return nil, nil, err
		}
		// Tables are per collection; make sure the ones we address exist.
		created := map[string]bool{}
		for _, r := range reqs {
			loc, err := doctxn.NewLocator(r.LocatorSpec)
			if err != nil || created[loc.Collection()] {
				continue
			}
			if err := s.CreateCollection(ctx, loc.Collection()); err != nil {
				cassandra.CloseConnection()
				return nil, nil, err
			}
			created[loc.Collection()] = true
		}
		return s, cassandra.CloseConnection, nil

	case doctxn.S3Backend:
		ac := aws_s3.ConfigFromDoctxn(cfg.S3)
		s, err := aws_s3.NewStore(aws_s3.Connect(ac), ac.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
