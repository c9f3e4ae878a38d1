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


package indexing

import "errors"

var (
	// ErrClientRequired is returned when an embedding client is not provided.
	ErrClientRequired = errors.New("embedding client required")

	// ErrCacheRequired is returned when a vector cache is not provided.
	ErrCacheRequired = errors.New("vector cache required")

	// ErrIndexerClosed is returned when work is submitted after Close.
	ErrIndexerClosed = errors.New("indexer closed")

	// ErrTaskPanicked is returned by a task whose function panicked.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrEmbeddingMismatch indicates the client returned a result for a
	// different entity than the one requested.
	ErrEmbeddingMismatch = errors.New("embedding result does not match request")
)
