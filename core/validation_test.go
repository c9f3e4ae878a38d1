package core

import (
	"errors"
	"math"
	"testing"
)

func validRecord() *EmbeddingRecord {
	vec := make([]float32, Dimensions)
	vec[0] = 1
	return &EmbeddingRecord{
		ID:         RecordID(EntityTypeNote, "n1", nil),
		EntityType: EntityTypeNote,
		EntityID:   "n1",
		Embedding:  vec,
		TextHash:   ComputeHash("note"),
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *EmbeddingRecord) *EmbeddingRecord
		wantErr error
	}{
		{
			name:    "valid record",
			mutate:  func(r *EmbeddingRecord) *EmbeddingRecord { return r },
			wantErr: nil,
		},
		{
			name: "valid chunked record",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.EntityType = EntityTypeJob
				r.EntityID = "j1"
				r.ChunkIndex = intPtr(1)
				r.ChunkTotal = intPtr(3)
				r.ID = RecordID(EntityTypeJob, "j1", r.ChunkIndex)
				return r
			},
			wantErr: nil,
		},
		{
			name:    "nil record",
			mutate:  func(r *EmbeddingRecord) *EmbeddingRecord { return nil },
			wantErr: ErrInvalidRecord,
		},
		{
			name: "unknown entity type",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.EntityType = "resume"
				return r
			},
			wantErr: ErrInvalidEntityType,
		},
		{
			name: "empty entity id",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.EntityID = ""
				return r
			},
			wantErr: ErrEmptyEntityID,
		},
		{
			name: "empty hash",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.TextHash = ""
				return r
			},
			wantErr: ErrEmptyTextHash,
		},
		{
			name: "id not derived from entity",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.ID = "note:other"
				return r
			},
			wantErr: ErrMismatchedID,
		},
		{
			name: "short embedding",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.Embedding = r.Embedding[:10]
				return r
			},
			wantErr: ErrInvalidDimensions,
		},
		{
			name: "NaN component",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.Embedding[5] = float32(math.NaN())
				return r
			},
			wantErr: ErrNonFiniteEmbedding,
		},
		{
			name: "chunk index without total",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.ChunkIndex = intPtr(0)
				r.ID = RecordID(r.EntityType, r.EntityID, r.ChunkIndex)
				return r
			},
			wantErr: ErrInvalidChunk,
		},
		{
			name: "chunk index out of range",
			mutate: func(r *EmbeddingRecord) *EmbeddingRecord {
				r.ChunkIndex = intPtr(2)
				r.ChunkTotal = intPtr(2)
				r.ID = RecordID(r.EntityType, r.EntityID, r.ChunkIndex)
				return r
			},
			wantErr: ErrInvalidChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.mutate(validRecord()))

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateRecord() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidateRecord() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRecord() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRecordDimensions(t *testing.T) {
	r := validRecord()
	r.Embedding = []float32{0.1, 0.2, 0.3}

	if err := ValidateRecordDimensions(r, 3); err != nil {
		t.Errorf("ValidateRecordDimensions() error = %v, want nil", err)
	}
	if err := ValidateRecordDimensions(r, 4); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("ValidateRecordDimensions() error = %v, want %v", err, ErrInvalidDimensions)
	}
}
