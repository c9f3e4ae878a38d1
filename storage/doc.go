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


// Package storage defines how embedding records are persisted.
//
// EmbeddingStore is the only contract the rest of the module depends on.
// Two implementations ship with it:
//
//   - badger: an embedded key-value store. Records live under emb:<id>
//     with secondary indexes for entity and parent job lookups.
//   - sqlite: a single-file SQL database using the pure Go modernc driver.
//
// # Usage
//
//	store, err := badger.Open("/path/to/index")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Record IDs
//
// IDs are derived, never generated: GenerateEmbeddingID returns
// "<type>:<entityId>" for single records and "<type>:<entityId>#<chunk>"
// for chunks, so saving a record twice replaces it.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines. Deleting absent records is never an error.
package storage
