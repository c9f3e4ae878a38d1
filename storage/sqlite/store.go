// Package sqlite stores embedding records in a single SQLite file through
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id            TEXT PRIMARY KEY,
	entity_type   TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	parent_job_id TEXT NOT NULL DEFAULT '',
	text_hash     TEXT NOT NULL,
	chunk_index   INTEGER,
	chunk_total   INTEGER,
	embedding     BLOB NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_entity ON embeddings (entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_parent_job ON embeddings (parent_job_id);
`

const upsertSQL = `
INSERT INTO embeddings (id, entity_type, entity_id, parent_job_id, text_hash, chunk_index, chunk_total, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	entity_type = excluded.entity_type,
	entity_id = excluded.entity_id,
	parent_job_id = excluded.parent_job_id,
	text_hash = excluded.text_hash,
	chunk_index = excluded.chunk_index,
	chunk_total = excluded.chunk_total,
	embedding = excluded.embedding,
	created_at = excluded.created_at`

// Store implements storage.EmbeddingStore on SQLite.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dims   int
	closed bool
}

var _ storage.EmbeddingStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDimensions sets the vector length records must have.
// Default is core.Dimensions.
func WithDimensions(dims int) Option {
	return func(s *Store) {
		s.dims = dims
	}
}

// Open opens or creates the database file at path. An empty path opens an
// in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: required for :memory: and avoids writer contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db, dims: core.Dimensions}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// GetAllEmbeddings returns every stored record ordered by ID.
func (s *Store) GetAllEmbeddings(ctx context.Context) ([]*core.EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, parent_job_id, text_hash, chunk_index, chunk_total, embedding, created_at
		FROM embeddings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var records []*core.EmbeddingRecord
	for rows.Next() {
		var (
			r          core.EmbeddingRecord
			entityType string
			chunkIndex sql.NullInt64
			chunkTotal sql.NullInt64
			blob       []byte
			micros     int64
		)
		if err := rows.Scan(&r.ID, &entityType, &r.EntityID, &r.ParentJobID, &r.TextHash,
			&chunkIndex, &chunkTotal, &blob, &micros); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		r.EntityType = core.EntityType(entityType)
		r.ChunkIndex = fromNull(chunkIndex)
		r.ChunkTotal = fromNull(chunkTotal)
		r.CreatedAt = time.UnixMicro(micros).UTC()
		if r.Embedding, err = storage.UnmarshalVector(blob); err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", storage.ErrSerializationFailed, r.ID, err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// SaveEmbedding inserts or replaces a record.
func (s *Store) SaveEmbedding(ctx context.Context, record *core.EmbeddingRecord) error {
	return s.SaveEmbeddings(ctx, []*core.EmbeddingRecord{record})
}

// SaveEmbeddings inserts or replaces records in one transaction.
func (s *Store) SaveEmbeddings(ctx context.Context, records []*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if err := storage.ValidateRecord(record, s.dims); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			_, err := stmt.ExecContext(ctx, r.ID, string(r.EntityType), r.EntityID, r.ParentJobID, r.TextHash,
				toNull(r.ChunkIndex), toNull(r.ChunkTotal), storage.MarshalVector(r.Embedding), r.CreatedAt.UnixMicro())
			if err != nil {
				return fmt.Errorf("save embedding %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// DeleteEmbedding removes a record by ID. Absent records are ignored.
func (s *Store) DeleteEmbedding(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM embeddings WHERE id = ?`, id)
}

// DeleteEmbeddingsByEntity removes every chunk of one entity.
func (s *Store) DeleteEmbeddingsByEntity(ctx context.Context, entityType core.EntityType, entityID string) error {
	return s.exec(ctx, `DELETE FROM embeddings WHERE entity_type = ? AND entity_id = ?`, string(entityType), entityID)
}

// DeleteEmbeddingsByJob removes the job's own records and every record
// owned by the job.
func (s *Store) DeleteEmbeddingsByJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	return s.exec(ctx, `DELETE FROM embeddings WHERE (entity_type = ? AND entity_id = ?) OR parent_job_id = ?`,
		string(core.EntityTypeJob), jobID, jobID)
}

// ReplaceEntities deletes the chunk sets of keys and writes records in one
// transaction.
func (s *Store) ReplaceEntities(ctx context.Context, keys []core.EntityKey, records []*core.EmbeddingRecord) error {
	for _, record := range records {
		if err := storage.ValidateRecord(record, s.dims); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE entity_type = ? AND entity_id = ?`,
				string(key.Type), key.ID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", key.Type, key.ID, err)
			}
		}
		if len(records) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			_, err := stmt.ExecContext(ctx, r.ID, string(r.EntityType), r.EntityID, r.ParentJobID, r.TextHash,
				toNull(r.ChunkIndex), toNull(r.ChunkTotal), storage.MarshalVector(r.Embedding), r.CreatedAt.UnixMicro())
			if err != nil {
				return fmt.Errorf("save embedding %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ClearAllEmbeddings removes every record.
func (s *Store) ClearAllEmbeddings(ctx context.Context) error {
	return s.exec(ctx, `DELETE FROM embeddings`)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
