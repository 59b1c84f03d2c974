package docstore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore adapts a Cloud Firestore client to Store.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an initialised Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

// Get returns the document at path.
func (s *FirestoreStore) Get(ctx context.Context, path string) (Doc, error) {
	ref, err := s.doc(path)
	if err != nil {
		return Doc{}, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Doc{}, ErrNotFound
	}
	if err != nil {
		return Doc{}, fmt.Errorf("getting document %s: %w", path, err)
	}
	return fromSnapshot(snap)
}

// Set merges fields into the document at path.
func (s *FirestoreStore) Set(ctx context.Context, path string, fields map[string]any) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	// Normalise so structs are written with their JSON field names.
	n, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, n, firestore.MergeAll); err != nil {
		return fmt.Errorf("setting document %s: %w", path, err)
	}
	return nil
}

// Update applies updates to an existing document.
func (s *FirestoreStore) Update(ctx context.Context, path string, updates []Update) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	fsUpdates := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		fu := firestore.Update{FieldPath: firestore.FieldPath(strings.Split(u.Path, "."))}
		if un, ok := u.Value.(union); ok {
			elems := make([]any, 0, len(un.elems))
			for _, e := range un.elems {
				ne, err := normalize(e)
				if err != nil {
					return fmt.Errorf("normalizing union element for %s: %w", u.Path, err)
				}
				elems = append(elems, ne)
			}
			fu.Value = firestore.ArrayUnion(elems...)
		} else {
			v, err := normalize(u.Value)
			if err != nil {
				return fmt.Errorf("normalizing value for %s: %w", u.Path, err)
			}
			fu.Value = v
		}
		fsUpdates = append(fsUpdates, fu)
	}

	_, err = ref.Update(ctx, fsUpdates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating document %s: %w", path, err)
	}
	return nil
}

// Query returns every document in the collection.
func (s *FirestoreStore) Query(ctx context.Context, collection string) ([]Doc, error) {
	col := s.client.Collection(collection)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", collection)
	}
	snaps, err := col.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	docs := make([]Doc, 0, len(snaps))
	for _, snap := range snaps {
		d, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Watch streams document snapshots from a Firestore realtime listener.
func (s *FirestoreStore) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}
	it := ref.Snapshots(ctx)
	ch := make(chan Snapshot, 1)

	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			snap, err := it.Next()
			var out Snapshot
			switch {
			case err != nil:
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				out = Snapshot{Err: fmt.Errorf("watching %s: %w", path, err)}
			case !snap.Exists():
				out = Snapshot{Doc: Doc{ID: ref.ID, Path: path}, Err: ErrNotFound}
			default:
				d, derr := fromSnapshot(snap)
				out = Snapshot{Doc: d, Err: derr}
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch, nil
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (Doc, error) {
	data, err := normalizeFields(snap.Data())
	if err != nil {
		return Doc{}, err
	}
	return Doc{ID: snap.Ref.ID, Path: refPath(snap.Ref), Data: data}, nil
}

// refPath strips the projects/*/databases/*/documents/ prefix.
func refPath(ref *firestore.DocumentRef) string {
	const marker = "/documents/"
	if i := strings.Index(ref.Path, marker); i >= 0 {
		return ref.Path[i+len(marker):]
	}
	return ref.Path
}
