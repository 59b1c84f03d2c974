// Package docstore defines the document-store contract the rest of Liftline
// is written against, plus adapters for Firestore, PostgreSQL and memory.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Doc is a single document read from the store.
type Doc struct {
	ID   string         `json:"id"`
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

// Update is a partial write of one dotted field path.
type Update struct {
	Path  string
	Value any
}

// union marks an Update value that appends elements to an array field.
type union struct {
	elems []any
}

// ArrayUnion returns an Update that appends each element not already present
// in the array at field. Concurrent unions on the same field do not clobber
// each other.
func ArrayUnion(field string, elems ...any) Update {
	return Update{Path: field, Value: union{elems: elems}}
}

// Snapshot is one delivery of a watched document. Err is set when the
// document is missing (ErrNotFound) or the subscription failed.
type Snapshot struct {
	Doc Doc
	Err error
}

// Store is the remote document store.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (Doc, error)

	// Set merges fields into the document at path, creating it if absent.
	Set(ctx context.Context, path string, fields map[string]any) error

	// Update applies updates to an existing document. It returns ErrNotFound
	// when the document does not exist.
	Update(ctx context.Context, path string, updates []Update) error

	// Query returns every document directly under the collection path.
	Query(ctx context.Context, collection string) ([]Doc, error)

	// Watch delivers the full document on every change until ctx is done.
	// The first snapshot is the current state. The channel is closed when
	// the subscription ends.
	Watch(ctx context.Context, path string) (<-chan Snapshot, error)
}

// splitPath returns the parent collection path and the document id.
func splitPath(path string) (parent, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
