package testing

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/lms-platform/shipping-core/pkg/mongodb"
)

const (
	mongoImage      = "mongo:7"
	mongoReplicaSet = "rs0"
)

// MongoReplicaSet is a disposable single-node replica set. Wallet debits and
// remittance approvals run in transactions, which a standalone mongod rejects.
type MongoReplicaSet struct {
	container *tcmongo.MongoDBContainer
	uri       string
}

// StartMongoReplicaSet starts the container and waits for the replica set
func StartMongoReplicaSet(ctx context.Context) (*MongoReplicaSet, error) {
	container, err := tcmongo.Run(ctx, mongoImage, tcmongo.WithReplicaSet(mongoReplicaSet))
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", mongoImage, err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		return nil, fmt.Errorf("resolve connection string: %w", err)
	}
	return &MongoReplicaSet{container: container, uri: uri}, nil
}

// Connect opens a client bound to database through the production client
func (m *MongoReplicaSet) Connect(ctx context.Context, database string) (*mongodb.Client, error) {
	cfg := mongodb.FromEnv(func(string) string { return "" })
	cfg.URI = m.uri
	cfg.Direct = true
	cfg.Database = database
	cfg.AuthDB = ""
	return mongodb.NewClient(ctx, cfg, nil)
}

// Terminate stops and removes the container
func (m *MongoReplicaSet) Terminate() error {
	if m == nil || m.container == nil {
		return nil
	}
	return testcontainers.TerminateContainer(m.container)
}
