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


// Package worker runs embedding models behind a message boundary.
//
// A Unit owns one ai.Model and talks to the rest of the process only through
// tagged messages on an in-process watermill bus. A Client owns at most one
// live Unit, correlates responses with requests by id, and shares a single
// model load among concurrent callers.
//
// # Protocol
//
// Requests: INIT_MODEL, EMBED_TEXT, EMBED_BATCH.
// Responses: MODEL_PROGRESS, MODEL_READY, EMBEDDING_RESULT, BATCH_RESULT, ERROR.
//
// MODEL_PROGRESS may arrive any number of times for an INIT_MODEL request.
// Every other response completes exactly one request. Responses arrive in
// completion order, not request order.
//
// # Failure
//
// An ERROR response fails only its own request. A panic inside the unit is
// fatal: every outstanding request fails with ErrUnitCrashed, and the next
// request spawns a fresh unit.
//
// Example usage:
//
//	client, err := worker.NewClient(factory)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Initialize(ctx, func(p ai.Progress) {
//	    log.Printf("%s %.0f%%", p.Stage, p.Percent)
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	res, err := client.Embed(ctx, "Senior Go engineer", core.EntityTypeJob, "42")
package worker
