package services

import (
	"context"
	"encoding/json"
	"fmt"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

// Document is one stored entry of a collection: content plus its
// embedding and a flat string metadata map.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// QueryMatch is one ranked nearest-neighbor result. Distance semantics
// belong to the store; lower means closer, nothing else is assumed.
type QueryMatch struct {
	ID       string
	Content  string
	Distance float32
	Metadata map[string]string
}

// VectorStore wraps the persistent vector database at the boundary the
// rest of the server depends on. Implementations must serialize
// conflicting writes to the same collection+id and may parallelize
// freely across different keys.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string) error
	DeleteCollection(ctx context.Context, name string) error
	RenameCollection(ctx context.Context, oldName, newName string) error
	ListCollections(ctx context.Context) ([]models.CollectionInfo, error)

	// Upsert writes documents into a collection, replacing any existing
	// document with the same id in a single operation.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Get returns documents by id, or every document when ids is nil.
	// Embeddings are only populated when includeEmbeddings is set.
	Get(ctx context.Context, collection string, ids []string, includeEmbeddings bool) ([]Document, error)

	Delete(ctx context.Context, collection string, ids []string) error

	// Query returns the k nearest neighbors of embedding, nearest first,
	// in the store's native order.
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]QueryMatch, error)
}

// ChromaStore implements VectorStore against a ChromaDB server using
// the chroma-go v2 API.
type ChromaStore struct {
	client chromago.Client
	logger *zap.SugaredLogger
}

// NewChromaStore connects to the ChromaDB server at baseURL.
func NewChromaStore(baseURL string, logger *zap.SugaredLogger) (*ChromaStore, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &ChromaStore{client: client, logger: logger}, nil
}

// Close releases the underlying client resources.
func (s *ChromaStore) Close() error {
	return s.client.Close()
}

func (s *ChromaStore) CreateCollection(ctx context.Context, name string) error {
	_, err := s.client.CreateCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	s.logger.Infow("STORE: collection created", "collection", name)
	return nil
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	s.logger.Infow("STORE: collection deleted", "collection", name)
	return nil
}

func (s *ChromaStore) RenameCollection(ctx context.Context, oldName, newName string) error {
	col, err := s.collection(ctx, oldName)
	if err != nil {
		return err
	}
	if err := col.ModifyName(ctx, newName); err != nil {
		return fmt.Errorf("rename collection %q to %q: %w", oldName, newName, err)
	}
	return nil
}

func (s *ChromaStore) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	cols, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	infos := make([]models.CollectionInfo, 0, len(cols))
	for _, c := range cols {
		infos = append(infos, models.CollectionInfo{Name: c.Name(), ID: c.ID()})
	}
	return infos, nil
}

func (s *ChromaStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	ids := make([]chromago.DocumentID, 0, len(docs))
	texts := make([]string, 0, len(docs))
	embeds := make([]embeddings.Embedding, 0, len(docs))
	metas := make([]chromago.DocumentMetadata, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, chromago.DocumentID(d.ID))
		texts = append(texts, d.Content)
		embeds = append(embeds, embeddings.NewEmbeddingFromFloat32(d.Embedding))
		metas = append(metas, toDocumentMetadata(d.Metadata))
	}
	err = col.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embeds...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("upsert %d document(s) into %q: %w", len(docs), collection, err)
	}
	return nil
}

func (s *ChromaStore) Get(ctx context.Context, collection string, ids []string, includeEmbeddings bool) ([]Document, error) {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	include := []chromago.Include{chromago.IncludeDocuments, chromago.IncludeMetadatas}
	if includeEmbeddings {
		include = append(include, chromago.IncludeEmbeddings)
	}
	opts := []chromago.CollectionGetOption{chromago.WithIncludeGet(include...)}
	if len(ids) > 0 {
		docIDs := make([]chromago.DocumentID, 0, len(ids))
		for _, id := range ids {
			docIDs = append(docIDs, chromago.DocumentID(id))
		}
		opts = append(opts, chromago.WithIDsGet(docIDs...))
	}

	results, err := col.Get(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("get documents from %q: %w", collection, err)
	}

	resIDs := results.GetIDs()
	resDocs := results.GetDocuments()
	resMetas := results.GetMetadatas()
	resEmbeds := results.GetEmbeddings()

	docs := make([]Document, 0, len(resIDs))
	for i := range resIDs {
		d := Document{ID: string(resIDs[i])}
		if i < len(resDocs) {
			d.Content = resDocs[i].ContentString()
		}
		if i < len(resMetas) {
			d.Metadata = fromDocumentMetadata(resMetas[i])
		}
		if includeEmbeddings && i < len(resEmbeds) && resEmbeds[i] != nil {
			d.Embedding = resEmbeds[i].ContentAsFloat32()
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *ChromaStore) Delete(ctx context.Context, collection string, ids []string) error {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return err
	}
	docIDs := make([]chromago.DocumentID, 0, len(ids))
	for _, id := range ids {
		docIDs = append(docIDs, chromago.DocumentID(id))
	}
	if err := col.Delete(ctx, chromago.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("delete %d document(s) from %q: %w", len(ids), collection, err)
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]QueryMatch, error) {
	col, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	// ChromaDB rejects n_results larger than the collection size.
	count, err := col.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count %q: %w", collection, err)
	}
	if count == 0 {
		return nil, nil
	}
	if int64(k) > int64(count) {
		k = int(count)
	}

	// No explicit include list: the server default returns documents,
	// metadatas and distances, and distances carry the threshold
	// semantics everywhere above.
	results, err := col.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(embedding)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", collection, err)
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}

	matches := make([]QueryMatch, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		m := QueryMatch{ID: string(id)}
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			m.Content = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			m.Metadata = fromDocumentMetadata(metaGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			m.Distance = float32(distGroups[0][i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// collection fetches an existing collection, mapping a miss to ErrNotFound.
func (s *ChromaStore) collection(ctx context.Context, name string) (chromago.Collection, error) {
	col, err := s.client.GetCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	return col, nil
}

func toDocumentMetadata(meta map[string]string) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(meta))
	for k, v := range meta {
		attrs = append(attrs, chromago.NewStringAttribute(k, v))
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromDocumentMetadata flattens chroma's metadata into a string map.
// The DocumentMetadata struct has no direct accessor for its values, so
// it goes through a JSON round trip, like the upstream examples do.
func fromDocumentMetadata(meta chromago.DocumentMetadata) map[string]string {
	out := make(map[string]string)
	if meta == nil {
		return out
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return out
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
