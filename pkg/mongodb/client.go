// Package mongodb connects to the shipping database and runs the
// multi-document transactions the wallet, NDR and remittance stores rely on.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const pingTimeout = 5 * time.Second

// Config holds MongoDB connection configuration
type Config struct {
	URI        string
	Database   string
	ReplicaSet string
	// Direct skips topology discovery, for single-node test replica sets
	Direct bool

	Username string
	Password string
	AuthDB   string

	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	MinPoolSize    uint64
}

// FromEnv reads MONGODB_* variables over local defaults. Pool sizes are left
// to the caller.
func FromEnv(getenv func(string) string) *Config {
	cfg := &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "shipping",
		AuthDB:         "admin",
		ConnectTimeout: 10 * time.Second,
	}
	for key, dst := range map[string]*string{
		"MONGODB_URI":         &cfg.URI,
		"MONGODB_DATABASE":    &cfg.Database,
		"MONGODB_REPLICA_SET": &cfg.ReplicaSet,
		"MONGODB_USERNAME":    &cfg.Username,
		"MONGODB_PASSWORD":    &cfg.Password,
		"MONGODB_AUTH_DB":     &cfg.AuthDB,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	return cfg
}

func (c *Config) clientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.URI).
		SetConnectTimeout(c.ConnectTimeout).
		SetMaxPoolSize(c.MaxPoolSize).
		SetMinPoolSize(c.MinPoolSize).
		SetWriteConcern(writeconcern.Majority())

	if c.ReplicaSet != "" {
		opts.SetReplicaSet(c.ReplicaSet)
	}
	if c.Direct {
		opts.SetDirect(true)
	}
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthDB,
		})
	}
	return opts
}

// Client is a connected driver client bound to one database
type Client struct {
	mc *mongo.Client
	db *mongo.Database
}

// NewClient connects and pings the primary. monitor may be nil.
func NewClient(ctx context.Context, config *Config, monitor *event.CommandMonitor) (*Client, error) {
	opts := config.clientOptions()
	if monitor != nil {
		opts.SetMonitor(monitor)
	}

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	c := &Client{mc: mc, db: mc.Database(config.Database)}
	if err := c.HealthCheck(ctx); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

// Database returns the bound database
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

// HealthCheck pings the primary
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := c.mc.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb primary unreachable: %w", err)
	}
	return nil
}

// WithTransaction runs fn in a transaction on a fresh session. The driver
// retries fn on transient transaction errors, so fn must be safe to rerun.
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	if _, err := session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	}); err != nil {
		return err
	}
	return nil
}
