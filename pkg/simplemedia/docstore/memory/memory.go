package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

type record struct {
	fields  simplemedia.Document
	version int64
}

// Store implements simplemedia.DocumentStore using in-memory maps
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for server timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory document store
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]*record),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) collection(name string) map[string]*record {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*record)
		s.collections[name] = c
	}
	return c
}

func (s *Store) Create(ctx context.Context, collection, id string, fields simplemedia.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	c := s.collection(collection)
	var version int64 = 1
	if existing, ok := c[id]; ok {
		version = existing.version + 1
	}
	c[id] = &record{
		fields:  s.resolve(fields),
		version: version,
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplemedia.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", simplemedia.ErrNotFound, collection, id)
	}
	return &simplemedia.Snapshot{
		ID:      id,
		Fields:  simplemedia.CloneDocument(rec.fields),
		Version: rec.version,
	}, nil
}

func (s *Store) Query(ctx context.Context, collection string, q simplemedia.Query) (simplemedia.DocumentIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snaps := make([]*simplemedia.Snapshot, 0, len(s.collections[collection]))
	for id, rec := range s.collections[collection] {
		snaps = append(snaps, &simplemedia.Snapshot{
			ID:      id,
			Fields:  simplemedia.CloneDocument(rec.fields),
			Version: rec.version,
		})
	}
	s.mu.RUnlock()

	sortSnapshots(snaps, q)
	return &iterator{snaps: snaps, pos: -1}, nil
}

// sortSnapshots orders by q.OrderBy with missing fields last in either
// direction. Ties are broken by id.
func sortSnapshots(snaps []*simplemedia.Snapshot, q simplemedia.Query) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if q.OrderBy == "" {
			return snaps[i].ID < snaps[j].ID
		}
		a, aok := snaps[i].Fields[q.OrderBy]
		b, bok := snaps[j].Fields[q.OrderBy]
		aok = aok && a != nil
		bok = bok && b != nil
		switch {
		case !aok && !bok:
			return snaps[i].ID < snaps[j].ID
		case !aok:
			return false
		case !bok:
			return true
		}
		c := simplemedia.CompareValues(a, b)
		if c == 0 {
			return snaps[i].ID < snaps[j].ID
		}
		if q.Direction == simplemedia.Descending {
			return c > 0
		}
		return c < 0
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields simplemedia.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", simplemedia.ErrNotFound, collection, id)
	}
	s.merge(rec, fields)
	return nil
}

func (s *Store) UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields simplemedia.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	rec, ok := c[id]
	if version == 0 {
		if ok {
			return fmt.Errorf("%w: %s/%s already exists", simplemedia.ErrVersionConflict, collection, id)
		}
		c[id] = &record{
			fields:  s.resolve(fields),
			version: 1,
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s no longer exists", simplemedia.ErrVersionConflict, collection, id)
	}
	if rec.version != version {
		return fmt.Errorf("%w: %s/%s is at version %d, expected %d",
			simplemedia.ErrVersionConflict, collection, id, rec.version, version)
	}
	s.merge(rec, fields)
	return nil
}

// resolve copies fields with server timestamps filled in. A nil document is
// stored as an empty one.
func (s *Store) resolve(fields simplemedia.Document) simplemedia.Document {
	if fields == nil {
		return simplemedia.Document{}
	}
	return simplemedia.ResolveServerTimestamps(fields, s.now().UTC())
}

func (s *Store) merge(rec *record, fields simplemedia.Document) {
	if rec.fields == nil {
		rec.fields = simplemedia.Document{}
	}
	resolved := simplemedia.ResolveServerTimestamps(fields, s.now().UTC())
	for k, v := range resolved {
		rec.fields[k] = v
	}
	rec.version++
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

func (s *Store) Now(ctx context.Context) (time.Time, error) {
	return s.now().UTC(), nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

type iterator struct {
	snaps []*simplemedia.Snapshot
	pos   int
	err   error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.pos+1 >= len(it.snaps) {
		it.pos = len(it.snaps)
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Snapshot() *simplemedia.Snapshot {
	if it.pos < 0 || it.pos >= len(it.snaps) {
		return nil
	}
	return it.snaps[it.pos]
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close(ctx context.Context) error {
	it.snaps = nil
	it.pos = 0
	return nil
}
