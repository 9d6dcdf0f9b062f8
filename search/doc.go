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


// Package search provides similarity search over document chunks.
//
// Index is the boundary used by ingestion and retrieval. Linear implements it
// with a full scan of every chunk that belongs to a ready document, scoring
// each with Cosine. The scan reads documents and chunks from one snapshot, so
// a document's chunks appear all at once when it becomes ready.
//
// Chunks whose stored vector cannot be decoded are skipped and reported to
// the Monitor instead of failing the query.
package search
