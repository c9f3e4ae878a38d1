package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/semindex/core"
)

// EmbeddingStore persists embedding records.
// Implementations must be thread-safe and support concurrent access.
type EmbeddingStore interface {
	// GetAllEmbeddings returns every stored record.
	GetAllEmbeddings(ctx context.Context) ([]*core.EmbeddingRecord, error)

	// SaveEmbedding inserts or replaces a record by ID.
	SaveEmbedding(ctx context.Context, record *core.EmbeddingRecord) error

	// SaveEmbeddings inserts or replaces several records atomically.
	SaveEmbeddings(ctx context.Context, records []*core.EmbeddingRecord) error

	// DeleteEmbedding removes a record by ID.
	// Deleting an absent record is not an error.
	DeleteEmbedding(ctx context.Context, id string) error

	// DeleteEmbeddingsByEntity removes every chunk of one entity.
	DeleteEmbeddingsByEntity(ctx context.Context, entityType core.EntityType, entityID string) error

	// DeleteEmbeddingsByJob removes the job's own records and every record
	// whose ParentJobID is jobID.
	DeleteEmbeddingsByJob(ctx context.Context, jobID string) error

	// ReplaceEntities removes every chunk of the entities in keys and writes
	// records in one transaction. Records are validated first; on any error
	// the stored chunk sets are left as they were.
	ReplaceEntities(ctx context.Context, keys []core.EntityKey, records []*core.EmbeddingRecord) error

	// ClearAllEmbeddings removes every record.
	ClearAllEmbeddings(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// GenerateEmbeddingID derives the storage ID of a record. chunkIndex is nil
// for entities stored as a single record.
func GenerateEmbeddingID(entityType core.EntityType, entityID string, chunkIndex *int) string {
	return core.RecordID(entityType, entityID, chunkIndex)
}

// ValidateRecord checks a record before it is written.
func ValidateRecord(record *core.EmbeddingRecord, dims int) error {
	if err := core.ValidateRecordDimensions(record, dims); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// MatchesJob reports whether record belongs to jobID, either as the job's
// own record or through ParentJobID.
func MatchesJob(record *core.EmbeddingRecord, jobID string) bool {
	if jobID == "" {
		return false
	}
	if record.ParentJobID == jobID {
		return true
	}
	return record.EntityType == core.EntityTypeJob && record.EntityID == jobID
}
