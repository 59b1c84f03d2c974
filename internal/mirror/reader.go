package mirror

import (
	"context"
	"log/slog"

	"github.com/alecgard/liftline/internal/docstore"
)

// Merge reconciles a locally held copy of an entity with its freshly fetched
// primary copy. Every field the remote has wins; fields only the local copy
// has survive; messages come from remote, then local, then empty.
func Merge(local, remote map[string]any) map[string]any {
	out := make(map[string]any, len(local)+len(remote)+1)
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		out[k] = v
	}
	switch {
	case remote["messages"] != nil:
		out["messages"] = remote["messages"]
	case local["messages"] != nil:
		out["messages"] = local["messages"]
	default:
		out["messages"] = []any{}
	}
	return out
}

// Reader loads the primary copy of an entity and merges it over a local copy.
type Reader struct {
	store docstore.Store
}

// NewReader creates a Reader over store.
func NewReader(store docstore.Store) *Reader {
	return &Reader{store: store}
}

// Load fetches path and merges it over local. If the fetch fails for any
// reason the local copy is returned unchanged; an error is returned only
// when there is no local copy to fall back to.
func (r *Reader) Load(ctx context.Context, path string, local map[string]any) (map[string]any, error) {
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		if local == nil {
			return nil, err
		}
		slog.Debug("primary copy unavailable, using local copy", "path", path, "error", err)
		return local, nil
	}
	return Merge(local, doc.Data), nil
}
