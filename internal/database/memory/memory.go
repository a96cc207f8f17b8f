// Package memory provides an in-memory record store seeded from a YAML or JSON fixture file.
//
// It serves the same read operations as the MongoDB manager and evaluates list queries with
// the same semantics, which makes it suitable for local runs and tests.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/periscope/aggregator-api/internal/models"
	"github.com/ubuntu/decorate"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"
)

var errClosed = errors.New("memory store closed")

// fixture is the on-disk layout. JSON fixtures are read as YAML.
type fixture struct {
	Records []fixtureRecord `yaml:"records"`
}

type fixtureRecord struct {
	ID        string         `yaml:"id"`
	BizID     string         `yaml:"biz_id"`
	Brand     map[string]any `yaml:"brand"`
	City      string         `yaml:"city"`
	Data      map[string]any `yaml:"data"`
	Location  map[string]any `yaml:"location"`
	Message   string         `yaml:"message"`
	Platform  map[string]any `yaml:"platform"`
	Status    string         `yaml:"status"`
	StoreID   string         `yaml:"store_id"`
	Timestamp string         `yaml:"timestamp"`
}

// Store holds the records loaded from a fixture file.
type Store struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	records []models.AggregatorRecord
	closed  bool
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Store default values.
type Options func(*options)

// WithLogger sets the logger reload warnings are reported to.
func WithLogger(l *slog.Logger) Options {
	return func(opts *options) {
		opts.logger = l
	}
}

// New creates a store and loads the fixture at path.
func New(path string, args ...Options) (*Store, error) {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	s := &Store{
		path: path,
		log:  opts.logger,
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the fixture file and replaces the stored records.
// On error, the previous records are kept.
func (s *Store) Load() (err error) {
	defer decorate.OnError(&err, "could not load fixture %q", s.path)

	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var f fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}

	records := make([]models.AggregatorRecord, 0, len(f.Records))
	for i, fr := range f.Records {
		r, err := fr.record()
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.log.Info("Fixture loaded", "path", s.path, "records", len(records))
	return nil
}

func (fr fixtureRecord) record() (models.AggregatorRecord, error) {
	id := primitive.NewObjectID()
	if fr.ID != "" {
		var err error
		if id, err = models.ParseID(fr.ID); err != nil {
			return models.AggregatorRecord{}, err
		}
	}

	var ts time.Time
	if fr.Timestamp != "" {
		var err error
		if ts, err = time.Parse(time.RFC3339, fr.Timestamp); err != nil {
			return models.AggregatorRecord{}, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return models.AggregatorRecord{
		ID:        id,
		BizID:     fr.BizID,
		Brand:     fr.Brand,
		City:      fr.City,
		Data:      fr.Data,
		Location:  fr.Location,
		Message:   fr.Message,
		Platform:  fr.Platform,
		Status:    fr.Status,
		StoreID:   fr.StoreID,
		Timestamp: ts,
	}, nil
}

// Watch reloads the fixture whenever the file changes, until ctx is done.
//
// It returns two channels: one notified after each successful reload and another for
// unrecoverable watcher errors. A failed reload keeps the previous records.
func (s *Store) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}

	s.log.Info("Watching fixture directory", "dir", dir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("Fixture watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- errors.New("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}

				s.log.Debug("Fixture file changed. Reloading...")
				if err := s.Load(); err != nil {
					s.log.Warn("Error reloading fixture, keeping previous records", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- errors.New("watcher errors channel closed unexpectedly")
					return
				}
				s.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// Sample returns at most n records in fixture order.
// Errors are returned as is, since the sample route reports their text verbatim.
func (s *Store) Sample(ctx context.Context, n int64) ([]models.AggregatorRecord, error) {
	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return all[:min(int64(len(all)), max(n, 0))], nil
}

// List returns one page of records matching q, along with the total number of matches.
func (s *Store) List(ctx context.Context, q models.ListQuery) (records []models.AggregatorRecord, total int64, err error) {
	defer decorate.OnError(&err, "could not list records")

	if err := q.Validate(); err != nil {
		return nil, 0, err
	}

	all, err := s.snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]models.AggregatorRecord, 0, len(all))
	for _, r := range all {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}

	if q.Sort != "" {
		slices.SortStableFunc(matched, func(a, b models.AggregatorRecord) int {
			c := compareValues(a.Field(q.Sort), b.Field(q.Sort))
			if c == 0 {
				c = bytes.Compare(a.ID[:], b.ID[:])
			}
			if q.Descending {
				return -c
			}
			return c
		})
	}

	total = int64(len(matched))
	start := min(q.Skip, total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

// Get returns the record with the given hex identifier.
func (s *Store) Get(ctx context.Context, id string) (record models.AggregatorRecord, err error) {
	defer decorate.OnError(&err, "could not get record %q", id)

	oid, err := models.ParseID(id)
	if err != nil {
		return models.AggregatorRecord{}, err
	}

	all, err := s.snapshot(ctx)
	if err != nil {
		return models.AggregatorRecord{}, err
	}
	for _, r := range all {
		if r.ID == oid {
			return r, nil
		}
	}
	return models.AggregatorRecord{}, models.ErrNotFound
}

// Close releases the records. Any later read fails.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}

// snapshot returns the current records. Load replaces the slice rather than mutating it.
func (s *Store) snapshot(ctx context.Context) ([]models.AggregatorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	return s.records, nil
}

// compareValues orders values the way MongoDB does across the types found in fixtures:
// missing values first, then numbers, strings, and dates.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch va := a.(type) {
	case string:
		return cmp.Compare(va, b.(string))
	case time.Time:
		return va.Compare(b.(time.Time))
	}
	if fa, ok := number(a); ok {
		fb, _ := number(b)
		return cmp.Compare(fa, fb)
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := number(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case time.Time:
		return 4
	}
	return 3
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
