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

import "errors"

var (
	// ErrInvalidRecord indicates an EmbeddingRecord failed validation.
	ErrInvalidRecord = errors.New("invalid embedding record")

	// ErrInvalidEntityType indicates an unknown entity type.
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrEmptyEntityID indicates the EntityID field is empty.
	ErrEmptyEntityID = errors.New("entity id cannot be empty")

	// ErrEmptyTextHash indicates the TextHash field is empty.
	ErrEmptyTextHash = errors.New("text hash cannot be empty")

	// ErrMismatchedID indicates the record ID does not match its derived value.
	ErrMismatchedID = errors.New("record id does not match entity and chunk")

	// ErrInvalidDimensions indicates an embedding of the wrong length.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrNonFiniteEmbedding indicates an embedding holding NaN or Inf values.
	ErrNonFiniteEmbedding = errors.New("embedding contains non-finite values")

	// ErrInvalidChunk indicates inconsistent chunk index and total.
	ErrInvalidChunk = errors.New("invalid chunk index")

	// ErrEntityNotEmbedded indicates an entity has no stored embedding.
	ErrEntityNotEmbedded = errors.New("entity has no embedding")
)
