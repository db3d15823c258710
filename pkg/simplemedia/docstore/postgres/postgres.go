// Package postgres implements simplemedia.DocumentStore on a single JSONB
// table keyed by (collection, id).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-media/pkg/simplemedia"
)

const backendName = "postgres"

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements simplemedia.DocumentStore using PostgreSQL
type Store struct {
	db    DBTX
	table string
}

// Option configures a Store
type Option func(*Store)

// WithTable sets the table name, optionally schema qualified ("media.documents").
func WithTable(schema, table string) Option {
	return func(s *Store) {
		if schema == "" {
			s.table = pgx.Identifier{table}.Sanitize()
			return
		}
		s.table = pgx.Identifier{schema, table}.Sanitize()
	}
}

// New creates a store on top of an existing connection or pool
func New(db DBTX, opts ...Option) *Store {
	s := &Store{db: db, table: pgx.Identifier{"documents"}.Sanitize()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return New(pool, opts...), pool, nil
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`, s.table)
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return handlePostgresError("ensure schema", "", "", err)
	}
	return nil
}

func (s *Store) encode(ctx context.Context, fields simplemedia.Document) (string, error) {
	if simplemedia.HasServerTimestamps(fields) {
		now, err := s.Now(ctx)
		if err != nil {
			return "", err
		}
		fields = simplemedia.ResolveServerTimestamps(fields, now)
	}
	return encodeFields(fields)
}

func (s *Store) Create(ctx context.Context, collection, id string, fields simplemedia.Document) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := s.encode(ctx, fields)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s AS d (collection, id, fields, version)
		VALUES ($1, $2, $3::jsonb, 1)
		ON CONFLICT (collection, id) DO UPDATE SET
			fields = EXCLUDED.fields,
			version = d.version + 1,
			updated_at = now()`, s.table)
	if _, err := s.db.Exec(ctx, query, collection, id, payload); err != nil {
		return "", handlePostgresError("create", collection, id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*simplemedia.Snapshot, error) {
	query := fmt.Sprintf(`SELECT fields, version FROM %s WHERE collection = $1 AND id = $2`, s.table)

	var (
		raw     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, query, collection, id).Scan(&raw, &version)
	if err != nil {
		return nil, handlePostgresError("get", collection, id, err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", simplemedia.ErrInvalidDocument, collection, id, err)
	}
	return &simplemedia.Snapshot{ID: id, Fields: fields, Version: version}, nil
}

// Query orders by a top-level field. Missing and null values sort last in
// both directions; ties break by id.
func (s *Store) Query(ctx context.Context, collection string, q simplemedia.Query) (simplemedia.DocumentIterator, error) {
	query, args := s.selectQuery(collection, q)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError("query", collection, "", err)
	}
	return &iterator{rows: rows, collection: collection}, nil
}

func (s *Store) selectQuery(collection string, q simplemedia.Query) (string, []interface{}) {
	if q.OrderBy == "" {
		return fmt.Sprintf(`SELECT id, fields, version FROM %s WHERE collection = $1 ORDER BY id`, s.table),
			[]interface{}{collection}
	}
	dir := "ASC"
	if q.Direction == simplemedia.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(`
		SELECT id, fields, version FROM %s
		WHERE collection = $1
		ORDER BY (fields->($2::text) IS NULL OR fields->($2::text) = 'null'::jsonb), fields->($2::text) %s, id`, s.table, dir),
		[]interface{}{collection, q.OrderBy}
}

func (s *Store) Update(ctx context.Context, collection, id string, fields simplemedia.Document) error {
	payload, err := s.encode(ctx, fields)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET fields = fields || $3::jsonb, version = version + 1, updated_at = now()
		WHERE collection = $1 AND id = $2`, s.table)
	tag, err := s.db.Exec(ctx, query, collection, id, payload)
	if err != nil {
		return handlePostgresError("update", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", simplemedia.ErrNotFound, collection, id)
	}
	return nil
}

func (s *Store) UpdateIfVersion(ctx context.Context, collection, id string, version int64, fields simplemedia.Document) error {
	payload, err := s.encode(ctx, fields)
	if err != nil {
		return err
	}

	if version == 0 {
		query := fmt.Sprintf(`
			INSERT INTO %s (collection, id, fields, version)
			VALUES ($1, $2, $3::jsonb, 1)
			ON CONFLICT (collection, id) DO NOTHING`, s.table)
		tag, err := s.db.Exec(ctx, query, collection, id, payload)
		if err != nil {
			return handlePostgresError("insert", collection, id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s/%s already exists", simplemedia.ErrVersionConflict, collection, id)
		}
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s SET fields = fields || $3::jsonb, version = version + 1, updated_at = now()
		WHERE collection = $1 AND id = $2 AND version = $4`, s.table)
	tag, err := s.db.Exec(ctx, query, collection, id, payload, version)
	if err != nil {
		return handlePostgresError("update", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s is not at version %d", simplemedia.ErrVersionConflict, collection, id, version)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE collection = $1 AND id = $2`, s.table)
	if _, err := s.db.Exec(ctx, query, collection, id); err != nil {
		return handlePostgresError("delete", collection, id, err)
	}
	return nil
}

// Now returns the database clock.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, handlePostgresError("now", "", "", err)
	}
	return now.UTC(), nil
}

// Error handling helper
func handlePostgresError(operation, collection, id string, err error) error {
	key := collection + "/" + id
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", simplemedia.ErrNotFound, key)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01": // undefined_table
			return simplemedia.Unavailable(backendName, key, operation,
				fmt.Errorf("table does not exist - run EnsureSchema: %w", err))
		case "22P02", "22023": // invalid_text_representation, invalid_parameter_value
			return fmt.Errorf("%w: %s: %s", simplemedia.ErrInvalidDocument, key, pgErr.Message)
		default:
			return simplemedia.Unavailable(backendName, key, operation,
				fmt.Errorf("database error: %s (code: %s): %w", pgErr.Message, pgErr.Code, err))
		}
	}
	return simplemedia.Unavailable(backendName, key, operation, err)
}

type iterator struct {
	rows       pgx.Rows
	collection string
	current    *simplemedia.Snapshot
	err        error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		it.err = err
		it.rows.Close()
		return false
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			it.err = handlePostgresError("query", it.collection, "", err)
		}
		it.current = nil
		return false
	}

	var (
		id      string
		raw     []byte
		version int64
	)
	if err := it.rows.Scan(&id, &raw, &version); err != nil {
		it.err = handlePostgresError("scan", it.collection, "", err)
		return false
	}
	fields, err := decodeFields(raw)
	if err != nil {
		it.err = fmt.Errorf("%w: %s/%s: %v", simplemedia.ErrInvalidDocument, it.collection, id, err)
		return false
	}
	it.current = &simplemedia.Snapshot{ID: id, Fields: fields, Version: version}
	return true
}

func (it *iterator) Snapshot() *simplemedia.Snapshot {
	return it.current
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close(ctx context.Context) error {
	it.rows.Close()
	return nil
}
