package testutils

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/periscope/aggregator-api/internal/database"
	"github.com/periscope/aggregator-api/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoContainer represents a MongoDB container for testing purposes.
type MongoContainer struct {
	Container testcontainers.Container

	Host string
	Port string
	Name string
}

// StartMongoContainer starts a MongoDB container which is terminated at the end of the test.
//
// The test is skipped on non Linux platforms and in short mode.
func StartMongoContainer(t *testing.T) *MongoContainer {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skip("Skipping MongoDB container test on non-Linux OS")
	}
	if testing.Short() {
		t.Skip("Skipping MongoDB container test in short mode")
	}

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start MongoDB container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Teardown: failed to terminate MongoDB container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")

	return &MongoContainer{
		Container: container,
		Host:      host,
		Port:      port.Port(),
		Name:      "testdb",
	}
}

// URI returns the connection URI of the container database.
func (mc MongoContainer) URI() string {
	return fmt.Sprintf("mongodb://%s/%s", net.JoinHostPort(mc.Host, mc.Port), mc.Name)
}

// Config returns a database configuration targeting collection in the container.
func (mc MongoContainer) Config(collection string) database.Config {
	return database.Config{
		URI:        mc.URI(),
		Name:       mc.Name,
		Collection: collection,
		Timeout:    5 * time.Second,
	}
}

// Seed inserts records into collection, in order.
func (mc MongoContainer) Seed(t *testing.T, collection string, records ...models.AggregatorRecord) {
	t.Helper()

	if len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mc.URI()))
	require.NoError(t, err, "Setup: failed to connect to MongoDB")
	defer func() {
		require.NoError(t, client.Disconnect(context.Background()), "Setup: failed to disconnect from MongoDB")
	}()

	docs := make([]any, 0, len(records))
	for _, r := range records {
		docs = append(docs, r)
	}
	_, err = client.Database(mc.Name).Collection(collection).InsertMany(ctx, docs)
	require.NoError(t, err, "Setup: failed to seed records")
}
