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


// Package openai provides an ai.Model backed by OpenAI-compatible APIs.
//
// This package uses the langchaingo library to talk to OpenAI or
// OpenAI-compatible services (such as Ollama, LocalAI, or vLLM). Load
// embeds a probe text so that an unreachable host or a model with the
// wrong vector length fails initialization instead of the first search.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithBackend(ai.BackendOpenAI),
//	    ai.WithEmbeddingHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithEmbeddingModel("all-minilm"),
//	)
//
//	model, err := openai.NewModel(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
package openai
