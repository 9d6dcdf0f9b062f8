// Package reembed replaces the vectors of stored chunks with vectors from a
// new or updated embedding model.
//
// Only chunks of Ready documents are visited. Chunks are processed in batches
// that never span two documents, so a document deleted during the run is
// skipped without affecting the others. Embedding calls are retried with
// exponential backoff unless the provider rejects the credentials or quota,
// and vectors are normalized before they are stored.
package reembed
