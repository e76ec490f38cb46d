package redis

import (
	"crypto/tls"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/sharedcode/doctxn"
)

// Redis configurable options.
type Options struct {
	// Redis server(cluster) address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// URL is a redis:// connection string. When set it overrides Address, Password and DB.
	URL string
	// KeyPrefix is prepended to every document key.
	KeyPrefix string
	// TLS config.
	TLSConfig *tls.Config
}

// Connection contains Redis client connection object and the Options used to connect.
type Connection struct {
	Client  *redis.Client
	Options Options
}

// DefaultOptions.
func DefaultOptions() Options {
	return Options{
		Address:   "localhost:6379",
		Password:  "", // no password set
		DB:        0,  // use default DB
		KeyPrefix: "doctxn:",
	}
}

// OptionsFromConfig maps the redis section of a doctxn.Config.
func OptionsFromConfig(c doctxn.RedisConfig) Options {
	o := DefaultOptions()
	if c.Address != "" {
		o.Address = c.Address
	}
	o.Password = c.Password
	o.DB = c.DB
	o.URL = c.URL
	if c.KeyPrefix != "" {
		o.KeyPrefix = c.KeyPrefix
	}
	return o
}

var connection *Connection
var mux sync.Mutex

// Returns true if connection instance is valid.
func IsConnectionInstantiated() bool {
	mux.Lock()
	defer mux.Unlock()
	return connection != nil
}

// Creates a singleton connection and returns it for every call.
func OpenConnection(options Options) (*Connection, error) {
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}

	c, err := openConnection(options)
	if err != nil {
		return nil, err
	}
	connection = c
	return connection, nil
}

// Close the singleton connection if open.
func CloseConnection() error {
	mux.Lock()
	defer mux.Unlock()
	if connection == nil {
		return nil
	}
	err := closeConnection(connection)
	connection = nil
	return err
}

func openConnection(options Options) (*Connection, error) {
	ro := &redis.Options{
		TLSConfig: options.TLSConfig,
		Addr:      options.Address,
		Password:  options.Password,
		DB:        options.DB,
	}
	if options.URL != "" {
		var err error
		if ro, err = redis.ParseURL(options.URL); err != nil {
			return nil, err
		}
		if options.TLSConfig != nil {
			ro.TLSConfig = options.TLSConfig
		}
	}

	c := Connection{
		Client:  redis.NewClient(ro),
		Options: options,
	}
	return &c, nil
}

func closeConnection(c *Connection) error {
	if c == nil || c.Client == nil {
		return nil
	}
	err := c.Client.Close()
	c.Client = nil
	return err
}
