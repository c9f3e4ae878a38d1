// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"math"
)

// ValidateRecord checks a record against the Dimensions default.
func ValidateRecord(record *EmbeddingRecord) error {
	return ValidateRecordDimensions(record, Dimensions)
}

// ValidateRecordDimensions checks a record whose embedding must be dims long.
func ValidateRecordDimensions(record *EmbeddingRecord, dims int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if err := ValidateEntityType(record.EntityType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if record.EntityID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyEntityID)
	}

	if record.TextHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyTextHash)
	}

	if err := ValidateChunk(record.ChunkIndex, record.ChunkTotal); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if want := RecordID(record.EntityType, record.EntityID, record.ChunkIndex); record.ID != want {
		return fmt.Errorf("%w: %w: got %q, want %q", ErrInvalidRecord, ErrMismatchedID, record.ID, want)
	}

	if err := ValidateEmbedding(record.Embedding, dims); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return nil
}

func ValidateEntityType(t EntityType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntityType, string(t))
	}
	return nil
}

// ValidateChunk requires index and total to be both set or both nil.
func ValidateChunk(index, total *int) error {
	if index == nil && total == nil {
		return nil
	}
	if index == nil || total == nil {
		return fmt.Errorf("%w: index and total must be set together", ErrInvalidChunk)
	}
	if *total < 1 || *index < 0 || *index >= *total {
		return fmt.Errorf("%w: %d of %d", ErrInvalidChunk, *index, *total)
	}
	return nil
}

func ValidateEmbedding(embedding []float32, dims int) error {
	if len(embedding) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidDimensions, len(embedding), dims)
	}
	for _, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrNonFiniteEmbedding
		}
	}
	return nil
}
