// Package database provides read access to the aggregator data collection stored in MongoDB.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/periscope/aggregator-api/internal/models"
	"github.com/ubuntu/decorate"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// errNotConnected is returned when the manager was closed or never connected.
var errNotConnected = errors.New("database not connected")

// Config holds the configuration for connecting to MongoDB.
//
// When URI is set it is used as is; otherwise a URI is built from the individual parts.
type Config struct {
	URI        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	AuthSource string
	Collection string

	// Timeout bounds every query. Zero means 10 seconds.
	Timeout time.Duration
}

type dbClient interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Disconnect(ctx context.Context) error
}

type dbCollection interface {
	Find(ctx context.Context, filter any, opts ...*mongoopts.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...*mongoopts.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter any, opts ...*mongoopts.CountOptions) (int64, error)
}

// Manager manages the MongoDB client and the aggregator data collection.
type Manager struct {
	client dbClient
	coll   dbCollection
	mu     sync.RWMutex

	timeout      time.Duration
	closeTimeout time.Duration
}

type options struct {
	open         func(ctx context.Context, cfg Config) (dbClient, dbCollection, error)
	closeTimeout time.Duration
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New connects to MongoDB using the provided configuration.
// The connection is validated with a ping before returning.
func New(ctx context.Context, cfg Config, args ...Options) (*Manager, error) {
	opts := options{
		open:         openMongo,
		closeTimeout: 10 * time.Second,
	}
	for _, opt := range args {
		opt(&opts)
	}

	client, coll, err := opts.open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create database client: %w", err)
	}

	slog.Debug("Testing database connection", "database", cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		discCtx, discCancel := context.WithTimeout(ctx, opts.closeTimeout)
		defer discCancel()
		_ = client.Disconnect(discCtx)
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	slog.Info("Successfully pinged MongoDB", "database", cfg.Name, "collection", cfg.Collection)
	return &Manager{
		client:       client,
		coll:         coll,
		timeout:      timeout,
		closeTimeout: opts.closeTimeout,
	}, nil
}

func openMongo(ctx context.Context, cfg Config) (dbClient, dbCollection, error) {
	clientOpts := mongoopts.Client().
		ApplyURI(cfg.ConnectionURI()).
		SetBSONOptions(&mongoopts.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Database(cfg.Name).Collection(cfg.Collection), nil
}

// Sample returns at most n records in natural order.
// Driver errors are returned as is, since the sample route reports their text verbatim.
func (db *Manager) Sample(ctx context.Context, n int64) ([]models.AggregatorRecord, error) {
	return db.find(ctx, bson.D{}, mongoopts.Find().SetLimit(n))
}

// List returns one page of records matching q, along with the total number of matches.
func (db *Manager) List(ctx context.Context, q models.ListQuery) (records []models.AggregatorRecord, total int64, err error) {
	defer decorate.OnError(&err, "could not list records")

	if err := q.Validate(); err != nil {
		return nil, 0, err
	}

	coll, err := db.collection()
	if err != nil {
		return nil, 0, err
	}

	filter := Filter(q)

	countCtx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	total, err = coll.CountDocuments(countCtx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOpts := mongoopts.Find().SetSkip(q.Skip).SetLimit(q.Limit)
	if sort := SortSpec(q); sort != nil {
		findOpts.SetSort(sort)
	}
	records, err = db.find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Get returns the record with the given hex identifier.
func (db *Manager) Get(ctx context.Context, id string) (record models.AggregatorRecord, err error) {
	defer decorate.OnError(&err, "could not get record %q", id)

	oid, err := models.ParseID(id)
	if err != nil {
		return models.AggregatorRecord{}, err
	}

	coll, err := db.collection()
	if err != nil {
		return models.AggregatorRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	if err := coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.AggregatorRecord{}, models.ErrNotFound
		}
		return models.AggregatorRecord{}, err
	}
	return record, nil
}

func (db *Manager) find(ctx context.Context, filter any, opts *mongoopts.FindOptions) ([]models.AggregatorRecord, error) {
	coll, err := db.collection()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("query canceled: %v", err)
		}
		return nil, err
	}

	records := make([]models.AggregatorRecord, 0)
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

func (db *Manager) collection() (dbCollection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.coll == nil {
		return nil, errNotConnected
	}
	return db.coll, nil
}

// Close disconnects from the database.
//
// If the connection is already closed, it does nothing.
// If the client does not disconnect within the close timeout, it returns an error.
func (db *Manager) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), db.closeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- db.client.Disconnect(ctx) }()

	select {
	case err := <-done:
		db.client, db.coll = nil, nil
		if err != nil {
			return fmt.Errorf("failed to disconnect from database: %v", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}

// ConnectionURI returns the MongoDB connection URI for the configuration.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}

	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}

	u := &url.URL{
		Scheme: "mongodb",
		Host:   host,
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		u.User = url.User(c.User)
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		}
	}

	if c.AuthSource != "" {
		q := u.Query()
		q.Set("authSource", c.AuthSource)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// LogValue implements slog.LogValuer so that credentials are never logged.
func (c Config) LogValue() slog.Value {
	uri := c.ConnectionURI()
	if u, err := url.Parse(uri); err == nil {
		uri = u.Redacted()
	} else {
		uri = "<unparsable>"
	}

	return slog.GroupValue(
		slog.String("uri", uri),
		slog.String("name", c.Name),
		slog.String("collection", c.Collection),
		slog.Duration("timeout", c.Timeout),
	)
}
