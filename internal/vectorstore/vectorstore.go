// Package vectorstore abstracts the per-user vector index used by the
// document retrieval engine.
package vectorstore

import "context"

// Vector is one embedded chunk ready for indexing.
type Vector struct {
	ID      string
	Values  []float32
	Payload map[string]any
}

// Match is one nearest-neighbor search result.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Index is a namespaced vector index. A namespace isolates one user's
// documents from every other user's.
type Index interface {
	// Upsert writes vectors into the given namespace.
	Upsert(ctx context.Context, namespace string, vectors []Vector) error

	// Query returns the topK nearest neighbors of vector within namespace,
	// best match first.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)

	// Close releases the underlying connection.
	Close() error
}
