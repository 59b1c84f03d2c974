package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	ch chan Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]any),
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// Get returns a copy of the document at path.
func (s *MemoryStore) Get(_ context.Context, path string) (Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path)
}

// Set merges fields into the document at path.
func (s *MemoryStore) Set(_ context.Context, path string, fields map[string]any) error {
	n, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[path]
	if !ok {
		data = map[string]any{}
		s.docs[path] = data
	}
	mergeFields(data, n)
	s.publishLocked(path)
	return nil
}

// Update applies updates to an existing document.
func (s *MemoryStore) Update(_ context.Context, path string, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[path]
	if !ok {
		return ErrNotFound
	}
	// Apply to a copy so a failed update leaves the document untouched.
	next := cloneData(data)
	if err := applyUpdates(next, updates); err != nil {
		return err
	}
	s.docs[path] = next
	s.publishLocked(path)
	return nil
}

// Query returns the documents directly under collection ordered by id.
func (s *MemoryStore) Query(_ context.Context, collection string) ([]Doc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Doc
	for path, data := range s.docs {
		parent, id := splitPath(path)
		if parent != collection {
			continue
		}
		out = append(out, Doc{ID: id, Path: path, Data: cloneData(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Watch subscribes to the document at path. Slow consumers only ever see the
// latest snapshot; intermediate ones are dropped.
func (s *MemoryStore) Watch(ctx context.Context, path string) (<-chan Snapshot, error) {
	sub := &subscription{ch: make(chan Snapshot, 1)}

	s.mu.Lock()
	if s.subs[path] == nil {
		s.subs[path] = make(map[*subscription]struct{})
	}
	s.subs[path][sub] = struct{}{}
	sub.deliver(s.currentLocked(path))
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[path], sub)
		if len(s.subs[path]) == 0 {
			delete(s.subs, path)
		}
		close(sub.ch)
		s.mu.Unlock()
	}()

	return sub.ch, nil
}

// Delete removes the document at path. It exists for tests and tooling; the
// application itself never deletes documents.
func (s *MemoryStore) Delete(_ context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	s.publishLocked(path)
}

func (s *MemoryStore) snapshotLocked(path string) (Doc, error) {
	data, ok := s.docs[path]
	if !ok {
		return Doc{}, ErrNotFound
	}
	_, id := splitPath(path)
	return Doc{ID: id, Path: path, Data: cloneData(data)}, nil
}

func (s *MemoryStore) currentLocked(path string) Snapshot {
	doc, err := s.snapshotLocked(path)
	if err != nil {
		_, id := splitPath(path)
		return Snapshot{Doc: Doc{ID: id, Path: path}, Err: err}
	}
	return Snapshot{Doc: doc}
}

func (s *MemoryStore) publishLocked(path string) {
	subs := s.subs[path]
	if len(subs) == 0 {
		return
	}
	snap := s.currentLocked(path)
	for sub := range subs {
		// Each subscriber gets its own copy.
		cp := snap
		if snap.Doc.Data != nil {
			cp.Doc.Data = cloneData(snap.Doc.Data)
		}
		sub.deliver(cp)
	}
}

// deliver replaces any undelivered snapshot with snap. Callers hold the
// store mutex, so there is a single producer per channel.
func (sub *subscription) deliver(snap Snapshot) {
	select {
	case sub.ch <- snap:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- snap
}
