package core

import (
	"fmt"
	"time"
)

// Dimensions is the length of every embedding vector produced by the
// default sentence-transformer model.
const Dimensions = 384

// EntityType names the kind of source record an embedding belongs to.
type EntityType string

const (
	EntityTypeJob         EntityType = "job"
	EntityTypeStory       EntityType = "story"
	EntityTypeQA          EntityType = "qa"
	EntityTypeNote        EntityType = "note"
	EntityTypeDocument    EntityType = "doc"
	EntityTypeCoverLetter EntityType = "coverLetter"
)

// EntityTypes lists every known entity type in a stable order.
var EntityTypes = []EntityType{
	EntityTypeJob,
	EntityTypeStory,
	EntityTypeQA,
	EntityTypeNote,
	EntityTypeDocument,
	EntityTypeCoverLetter,
}

// ParseEntityType converts s into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Chunkable reports whether content of this type is split into chunks
// before embedding. Only long-form content is.
func (t EntityType) Chunkable() bool {
	return t == EntityTypeJob || t == EntityTypeDocument
}

func (t EntityType) String() string {
	return string(t)
}

// EmbeddingRecord is one stored vector for an entity or one chunk of it.
type EmbeddingRecord struct {
	ID          string
	EntityType  EntityType
	EntityID    string
	ParentJobID string    // Owning job for notes, Q&A entries and cover letters
	Embedding   []float32 // Dimensions long
	TextHash    string    // Hash of the full unchunked text; equal across chunks
	ChunkIndex  *int      // Set only when the entity was split into several chunks
	ChunkTotal  *int
	CreatedAt   time.Time
}

// Chunk returns the record's chunk index, or 0 for unchunked records.
func (r *EmbeddingRecord) Chunk() int {
	if r.ChunkIndex == nil {
		return 0
	}
	return *r.ChunkIndex
}

// Key identifies the logical entity a record belongs to.
func (r *EmbeddingRecord) Key() EntityKey {
	return EntityKey{Type: r.EntityType, ID: r.EntityID}
}

// EntityKey is the (type, id) pair that identifies a logical entity.
type EntityKey struct {
	Type EntityType
	ID   string
}

func (k EntityKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// RecordID derives the storage id of an embedding record. The same inputs
// always produce the same id.
func RecordID(entityType EntityType, entityID string, chunkIndex *int) string {
	if chunkIndex == nil {
		return fmt.Sprintf("%s:%s", entityType, entityID)
	}
	return fmt.Sprintf("%s:%s#%d", entityType, entityID, *chunkIndex)
}

// SearchResult pairs the best-scoring record of an entity with its score.
type SearchResult struct {
	Record *EmbeddingRecord
	Score  float32
}
