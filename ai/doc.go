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


// Package ai provides abstractions for the AI services used by policyrag.
//
// The package defines three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces chat completions for answers and translations
//   - AIProvider: Aggregates both services for convenient initialization
//
// Provider failures are reported as *ProviderError. Its Reason tells callers
// whether the credentials were rejected, the quota is exhausted, the provider
// is rate limiting, or the failure is transient:
//
//	if ai.IsReason(err, ai.ReasonAuth) {
//	    // ask the operator for a new key
//	}
//
// # Implementation Packages
//
//   - ai/openai: langchaingo clients for OpenAI-compatible APIs (OpenRouter, Ollama)
//   - ai/hashembed: deterministic hash embedder for reproducible retrieval
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and read call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithAPIKey(key))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	text, err := provider.Generator().Complete(ctx, []ai.ChatMessage{
//	    {Role: ai.ChatRoleUser, Content: "Hello"},
//	})
package ai
