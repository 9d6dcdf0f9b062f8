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


// Package rag answers questions about the ingested policy documents.
//
// An Orchestrator embeds the question, retrieves the most similar chunks of
// Ready documents from a search.Index, and asks a Generator to answer from
// that context only. Answers for languages other than the base language are
// translated before they are returned.
//
// Provider failures never reach the caller of Answer: they are logged and the
// caller receives a fixed apology with no sources. Only malformed input is
// rejected with an error.
package rag
