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


// Package ai provides the embedding model abstraction used by semindex.
//
// A Model is the thing that runs inside a worker unit: it is loaded once,
// reports download and load progress while doing so, and then turns text
// into fixed-length vectors. Nothing outside the worker package calls a
// Model directly; the rest of the system talks to the worker through
// messages.
//
// # Implementation Packages
//
//   - ai/hugot: all-MiniLM-L6-v2 (384 dimensions) run locally through ONNX
//   - ai/openai: OpenAI-compatible embedding endpoints via langchaingo
//   - ai/mock: deterministic test double with call counting and hooks
//
// Production constructors return the ai.Model interface. The mock returns
// its concrete type so tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithModelDir("/var/cache/semindex"))
//	model, err := hugot.NewModel(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	err = model.Load(ctx, func(p ai.Progress) {
//	    fmt.Printf("%s %.0f%%\n", p.Stage, p.Percent)
//	})
package ai
