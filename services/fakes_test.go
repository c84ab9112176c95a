package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/wevn/wevn/models"
)

// fakeStore is an in-memory VectorStore. Query returns whatever the
// test scripted in queryResults, capped to k.
type fakeStore struct {
	mu           sync.Mutex
	collections  map[string]map[string]Document
	queryResults []QueryMatch
	upserts      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string]map[string]Document{}}
}

func (f *fakeStore) CreateCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		f.collections[name] = map[string]Document{}
	}
	return nil
}

func (f *fakeStore) DeleteCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[name]; !ok {
		return fmt.Errorf("collection %s: %w", name, ErrNotFound)
	}
	delete(f.collections, name)
	return nil
}

func (f *fakeStore) RenameCollection(ctx context.Context, oldName, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, ok := f.collections[oldName]
	if !ok {
		return fmt.Errorf("collection %s: %w", oldName, ErrNotFound)
	}
	delete(f.collections, oldName)
	f.collections[newName] = docs
	return nil
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CollectionInfo
	for name := range f.collections {
		out = append(out, models.CollectionInfo{Name: name, ID: name})
	}
	return out, nil
}

func (f *fakeStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[collection]; !ok {
		f.collections[collection] = map[string]Document{}
	}
	for _, d := range docs {
		f.collections[collection][d.ID] = d
	}
	f.upserts++
	return nil
}

func (f *fakeStore) Get(ctx context.Context, collection string, ids []string, includeEmbeddings bool) ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, ErrNotFound)
	}
	if ids == nil {
		for id := range col {
			ids = append(ids, id)
		}
	}
	var out []Document
	for _, id := range ids {
		if d, ok := col[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, collection string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	col, ok := f.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, ErrNotFound)
	}
	for _, id := range ids {
		delete(col, id)
	}
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]QueryMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[collection]; !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, ErrNotFound)
	}
	if k > len(f.queryResults) {
		k = len(f.queryResults)
	}
	return f.queryResults[:k], nil
}

// fakeEmbedder returns a fixed vector for every text.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) WaitReady(ctx context.Context) error { return nil }

// recordingNotifier captures broadcast notifications.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Notification
}

func (r *recordingNotifier) Broadcast(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// scriptedChat implements ChatModel from canned replies. Stream feeds
// chunks exactly as scripted, then fails with streamErr if set.
type scriptedChat struct {
	replies   []string
	chunks    []string
	streamErr error
	invokes   int
}

func (s *scriptedChat) WaitReady(ctx context.Context) error { return nil }

func (s *scriptedChat) Invoke(ctx context.Context, prompt string) (string, error) {
	if s.invokes >= len(s.replies) {
		return "", fmt.Errorf("no scripted reply for invoke %d", s.invokes)
	}
	out := s.replies[s.invokes]
	s.invokes++
	return out, nil
}

func (s *scriptedChat) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	for _, chunk := range s.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return s.streamErr
}
