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


// Package indexing turns job-tracker entities into stored embedding records.
//
// The Indexer extracts the text of an entity, skips it when its content hash
// matches what is already stored, splits long-form content into chunks,
// embeds each chunk through an EmbeddingClient, and replaces the entity's
// records in the vector cache.
//
// Single-entity calls such as EmbedJob work synchronously. IndexAll walks a
// whole corpus one item at a time and writes every record in a single batch
// at the end. Submit and the Submit* helpers run work on a background pool
// and return a Task handle.
//
// Example usage:
//
//	ix, err := indexing.NewIndexer(client, vectors)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ix.Close()
//
//	summary, err := ix.IndexAll(ctx, jobs, stories, docs, func(p indexing.Progress) {
//	    log.Printf("%d/%d %s", p.Current, p.Total, p.Key)
//	})
package indexing
