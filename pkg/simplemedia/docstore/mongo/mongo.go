// Package mongo implements simplemedia.DocumentStore on MongoDB. Each logical
// collection maps to a Mongo collection; documents carry a _version field used
// for compare-and-swap updates.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	backendName  = "mongo"
	idField      = "_id"
	versionField = "_version"
	missingField = "_missing"
)

// Config for connecting to MongoDB
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration // Defaults to 10s
}

// Store implements simplemedia.DocumentStore
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, config Config) (*Store, error) {
	if config.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	if config.Database == "" {
		return nil, errors.New("mongo database is required")
	}
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return New(client, config.Database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) resolve(ctx context.Context, fields simplemedia.Document) (simplemedia.Document, error) {
	if !simplemedia.HasServerTimestamps(fields) {
		return simplemedia.CloneDocument(fields), nil
	}
	now, err := s.Now(ctx)
	if err != nil {
		return nil, err
	}
	return simplemedia.ResolveServerTimestamps(fields, now), nil
}

// Create writes fields under id, replacing any existing document and bumping
// its version.
func (s *Store) Create(ctx context.Context, collection, id string, fields simplemedia.Document) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	resolved, err := s.resolve(ctx, fields)
	if err != nil {
		return "", err
	}

	replacement := bson.D{{Key: "$replaceWith", Value: bson.M{
		"$mergeObjects": bson.A{
			bson.M{"$literal": stripReserved(resolved)},
			bson.M{
				idField:      id,
				versionField: bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + versionField, 0}}, 1}},
			},
		},
	}}}
	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.M{idField: id},
		mongo.Pipeline{replacement},
		options.Update().SetUpsert(true))
	if err != nil {
		return "", mapError(collection, id, "create", err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplemedia.Snapshot, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{idField: id}).Decode(&raw)
	if err != nil {
		return nil, mapError(collection, id, "get", err)
	}
	return toSnapshot(raw)
}

// Query returns the collection ordered by q.OrderBy. Documents without the
// field sort after all others in both directions.
func (s *Store) Query(ctx context.Context, collection string, q simplemedia.Query) (simplemedia.DocumentIterator, error) {
	pipeline, err := queryPipeline(q)
	if err != nil {
		return nil, err
	}
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapError(collection, "", "query", err)
	}
	return &iterator{cursor: cursor, collection: collection}, nil
}

func queryPipeline(q simplemedia.Query) (mongo.Pipeline, error) {
	if q.OrderBy == "" {
		return mongo.Pipeline{{{Key: "$sort", Value: bson.D{{Key: idField, Value: 1}}}}}, nil
	}
	if strings.HasPrefix(q.OrderBy, "$") || strings.Contains(q.OrderBy, ".") {
		return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
	}

	dir := 1
	if q.Direction == simplemedia.Descending {
		dir = -1
	}
	return mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{
			missingField: bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{bson.M{"$type": "$" + q.OrderBy}, bson.A{"missing", "null"}}},
				1, 0,
			}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: missingField, Value: 1},
			{Key: q.OrderBy, Value: dir},
			{Key: idField, Value: 1},
		}}},
		{{Key: "$project", Value: bson.M{missingField: 0}}},
	}, nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields simplemedia.Document) error {
	resolved, err := s.resolve(ctx, fields)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{idField: id}, mergeUpdate(resolved))
	if err != nil {
		return mapError(collection, id, "update", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s", simplemedia.ErrNotFound, collection, id)
	}
	return nil
}

// UpdateIfVersion merges fields only when the stored version matches. Version
// 0 inserts a new document and conflicts if one exists.
func (s *Store) UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields simplemedia.Document) error {
	resolved, err := s.resolve(ctx, fields)
	if err != nil {
		return err
	}
	coll := s.db.Collection(collection)

	if version == 0 {
		doc := stripReserved(resolved)
		doc[idField] = id
		doc[versionField] = int64(1)
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s/%s already exists", simplemedia.ErrVersionConflict, collection, id)
			}
			return mapError(collection, id, "insert", err)
		}
		return nil
	}

	res, err := coll.UpdateOne(ctx, bson.M{idField: id, versionField: version}, mergeUpdate(resolved))
	if err != nil {
		return mapError(collection, id, "update", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s/%s is not at version %d", simplemedia.ErrVersionConflict, collection, id, version)
	}
	return nil
}

func mergeUpdate(fields simplemedia.Document) bson.M {
	update := bson.M{"$inc": bson.M{versionField: int64(1)}}
	if set := stripReserved(fields); len(set) > 0 {
		update["$set"] = set
	}
	return update
}

// Delete removes a document. Missing documents are not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{idField: id}); err != nil {
		return mapError(collection, id, "delete", err)
	}
	return nil
}

// Now reads the server clock from the hello command.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var reply struct {
		LocalTime time.Time `bson:"localTime"`
	}
	if err := s.db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply); err != nil {
		return time.Time{}, mapError("", "", "hello", err)
	}
	return reply.LocalTime.UTC(), nil
}

func stripReserved(fields simplemedia.Document) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == idField || k == versionField {
			continue
		}
		out[k] = v
	}
	return out
}

func toSnapshot(raw bson.M) (*simplemedia.Snapshot, error) {
	snap := &simplemedia.Snapshot{Fields: simplemedia.Document{}}
	for k, v := range raw {
		switch k {
		case idField:
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: _id is %T", simplemedia.ErrInvalidDocument, v)
			}
			snap.ID = id
		case versionField:
			switch n := v.(type) {
			case int64:
				snap.Version = n
			case int32:
				snap.Version = int64(n)
			case float64:
				snap.Version = int64(n)
			}
		default:
			snap.Fields[k] = normalize(v)
		}
	}
	return snap, nil
}

func mapError(collection, id, op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %s/%s", simplemedia.ErrNotFound, collection, id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return simplemedia.Unavailable(backendName, collection+"/"+id, op, err)
}

type iterator struct {
	cursor     *mongo.Cursor
	collection string
	current    *simplemedia.Snapshot
	err        error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.cursor.Next(ctx) {
		if err := it.cursor.Err(); err != nil {
			it.err = mapError(it.collection, "", "query", err)
		}
		it.current = nil
		return false
	}
	var raw bson.M
	if err := it.cursor.Decode(&raw); err != nil {
		it.err = fmt.Errorf("decode %s document: %w", it.collection, err)
		return false
	}
	snap, err := toSnapshot(raw)
	if err != nil {
		it.err = err
		return false
	}
	it.current = snap
	return true
}

func (it *iterator) Snapshot() *simplemedia.Snapshot {
	return it.current
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}
