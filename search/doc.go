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


// Package search ranks stored embeddings against a query vector.
//
// The Engine scores every candidate record by cosine similarity, filters by
// entity type and job scope, drops scores below a threshold, and keeps only
// the best chunk of each entity. Ties are broken by entity type, then by
// entity id, so equal inputs always produce the same order.
package search
