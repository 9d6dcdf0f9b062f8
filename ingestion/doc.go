// Package ingestion turns uploaded bytes into searchable document chunks.
//
// A Pipeline drives each document through extraction, chunking, embedding
// and persistence on a worker pool, then marks it ready or failed. Callers
// never block on the work itself: Upload and BeginIngestion return once the
// job is queued, and completion is observed by polling the document status
// (Await) or through an Observer.
package ingestion
