package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wevn/wevn/models"
)

// Notifier receives change notifications for fan-out to connected
// clients. The websocket hub implements it; tests plug in a recorder.
type Notifier interface {
	Broadcast(n models.Notification)
}

// GraphService owns the semantic-link graph: nodes live in the vector
// store with their outgoing links encoded in metadata, and every write
// recomputes the written node's semantic neighborhood.
type GraphService struct {
	store    VectorStore
	embedder Embedder
	notifier Notifier
	logger   *zap.SugaredLogger

	defaultThreshold float32
	defaultMaxLinks  int
}

func NewGraphService(store VectorStore, embedder Embedder, notifier Notifier, threshold float32, maxLinks int, logger *zap.SugaredLogger) *GraphService {
	return &GraphService{
		store:            store,
		embedder:         embedder,
		notifier:         notifier,
		logger:           logger,
		defaultThreshold: threshold,
		defaultMaxLinks:  maxLinks,
	}
}

// embedText is the canonical embedding input for a node. Name and
// content embed together so short notes still carry their title's
// signal.
func embedText(name, content string) string {
	return fmt.Sprintf("Name: %s. %s", name, content)
}

func (g *GraphService) CreateCollection(ctx context.Context, name string) error {
	if err := g.store.CreateCollection(ctx, name); err != nil {
		return err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeDomain})
	return nil
}

func (g *GraphService) DeleteCollection(ctx context.Context, name string) error {
	if err := g.store.DeleteCollection(ctx, name); err != nil {
		return err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeDomain})
	return nil
}

func (g *GraphService) RenameCollection(ctx context.Context, oldName, newName string) error {
	if err := g.store.RenameCollection(ctx, oldName, newName); err != nil {
		return err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeDomain})
	return nil
}

func (g *GraphService) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	return g.store.ListCollections(ctx)
}

// InsertNode embeds the node, computes its semantic links against the
// current collection, and stores it under a fresh id.
func (g *GraphService) InsertNode(ctx context.Context, req models.NodeInsertRequest) (models.Node, error) {
	threshold, maxLinks := g.effective(req.DistanceThreshold, req.MaxLinks)

	vec, err := g.embedder.Embed(ctx, embedText(req.Name, req.Content))
	if err != nil {
		return models.Node{}, fmt.Errorf("embed node: %w", err)
	}

	id := uuid.NewString()
	links, err := g.computeLinks(ctx, req.Collection, vec, id, threshold, maxLinks)
	if err != nil {
		return models.Node{}, err
	}

	node := models.Node{
		NodeID:        id,
		Name:          req.Name,
		Content:       req.Content,
		UserLinks:     req.UserLinks,
		SemanticLinks: links,
	}
	doc := Document{
		ID:        id,
		Content:   req.Content,
		Embedding: vec,
		Metadata:  models.EncodeLinkMetadata(req.Name, req.UserLinks, links),
	}
	if err := g.store.Upsert(ctx, req.Collection, []Document{doc}); err != nil {
		return models.Node{}, err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	return node, nil
}

// UpdateNode re-embeds and recomputes links for an existing node. The
// node's own id is excluded from its candidate neighbors.
func (g *GraphService) UpdateNode(ctx context.Context, req models.NodeUpdateRequest) (models.Node, error) {
	threshold, maxLinks := g.effective(req.DistanceThreshold, req.MaxLinks)

	existing, err := g.store.Get(ctx, req.Collection, []string{req.NodeID}, false)
	if err != nil {
		return models.Node{}, err
	}
	if len(existing) == 0 {
		return models.Node{}, fmt.Errorf("node %s: %w", req.NodeID, ErrNotFound)
	}

	vec, err := g.embedder.Embed(ctx, embedText(req.Name, req.Content))
	if err != nil {
		return models.Node{}, fmt.Errorf("embed node: %w", err)
	}
	links, err := g.computeLinks(ctx, req.Collection, vec, req.NodeID, threshold, maxLinks)
	if err != nil {
		return models.Node{}, err
	}

	node := models.Node{
		NodeID:        req.NodeID,
		Name:          req.Name,
		Content:       req.Content,
		UserLinks:     req.UserLinks,
		SemanticLinks: links,
	}
	doc := Document{
		ID:        req.NodeID,
		Content:   req.Content,
		Embedding: vec,
		Metadata:  models.EncodeLinkMetadata(req.Name, req.UserLinks, links),
	}
	if err := g.store.Upsert(ctx, req.Collection, []Document{doc}); err != nil {
		return models.Node{}, err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	return node, nil
}

// DeleteNode removes a node. Links held by other nodes that point at it
// are left in place and filtered out on read.
func (g *GraphService) DeleteNode(ctx context.Context, collection, nodeID string) error {
	if err := g.store.Delete(ctx, collection, []string{nodeID}); err != nil {
		return err
	}
	g.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	return nil
}

// ListNodes returns every node in the collection. Semantic links whose
// target no longer exists are dropped from the returned nodes, so stale
// references from deletions never reach the client.
func (g *GraphService) ListNodes(ctx context.Context, collection string) ([]models.Node, error) {
	docs, err := g.store.Get(ctx, collection, nil, false)
	if err != nil {
		return nil, err
	}
	alive := make(map[string]bool, len(docs))
	for _, d := range docs {
		alive[d.ID] = true
	}
	nodes := make([]models.Node, 0, len(docs))
	for _, d := range docs {
		node := models.DecodeNode(d.ID, d.Content, d.Metadata)
		node.SemanticLinks = filterLinks(node.SemanticLinks, alive)
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Refactor recomputes semantic links for every node in the collection
// using the stored embeddings, then writes all nodes back in one batch.
// Per-node query failures are collected; the surviving nodes are still
// written and the failures reported together.
func (g *GraphService) Refactor(ctx context.Context, req models.RefactorRequest) error {
	threshold, maxLinks := g.effective(req.DistanceThreshold, req.MaxLinks)

	docs, err := g.store.Get(ctx, req.Collection, nil, true)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	type result struct {
		idx   int
		links []string
		err   error
	}
	results := make([]result, len(docs))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(8)
	for i, d := range docs {
		grp.Go(func() error {
			links, err := g.computeLinks(grpCtx, req.Collection, d.Embedding, d.ID, threshold, maxLinks)
			results[i] = result{idx: i, links: links, err: err}
			return nil
		})
	}
	// Goroutines never return errors; failures are per-node.
	_ = grp.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	failed := make(map[string]error)
	updated := make([]Document, 0, len(docs))
	for i, d := range docs {
		if results[i].err != nil {
			failed[d.ID] = results[i].err
			continue
		}
		// Rewrite only the link fields so extra metadata, like the
		// importer's source tracking, survives a refactor.
		node := models.DecodeNode(d.ID, d.Content, d.Metadata)
		for k, v := range models.EncodeLinkMetadata(node.Name, node.UserLinks, results[i].links) {
			d.Metadata[k] = v
		}
		updated = append(updated, d)
	}
	if len(updated) > 0 {
		if err := g.store.Upsert(ctx, req.Collection, updated); err != nil {
			return err
		}
		g.notifier.Broadcast(models.Notification{Type: models.ChangeNode})
	}
	if len(failed) > 0 {
		return &RefactorPartialError{Collection: req.Collection, Failed: failed}
	}
	return nil
}

// Search runs a plain similarity query and returns the raw matches.
func (g *GraphService) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchMatch, error) {
	k := req.MaxResults
	if k <= 0 {
		k = g.defaultMaxLinks
	}
	vec, err := g.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := g.store.Query(ctx, req.Collection, vec, k)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, models.SearchMatch{
			ID:       m.ID,
			Name:     m.Metadata[models.MetaName],
			Content:  m.Content,
			Distance: m.Distance,
		})
	}
	return out, nil
}

// Retrieve gathers context documents for a question: the nodes within
// the distance threshold, optionally expanded one hop along each
// match's semantic and user links. Returns the rendered documents and
// the ids that produced them, in retrieval order.
func (g *GraphService) Retrieve(ctx context.Context, req models.QueryRequest) ([]string, []string, error) {
	threshold := req.DistanceThreshold
	if threshold <= 0 {
		threshold = g.defaultThreshold
	}
	k := req.MaxResults
	if k <= 0 {
		k = g.defaultMaxLinks
	}

	vec, err := g.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := g.store.Query(ctx, req.Collection, vec, k)
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	var docs []string
	var ids []string
	var linked []string
	for _, m := range matches {
		if m.Distance > threshold || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		docs = append(docs, renderDoc(m.Metadata[models.MetaName], m.Content))
		ids = append(ids, m.ID)
		if req.FollowLinks {
			linked = append(linked, models.DecodeLinks(m.Metadata[models.MetaSemanticLinks])...)
			linked = append(linked, models.DecodeLinks(m.Metadata[models.MetaUserLinks])...)
		}
	}

	if req.FollowLinks && len(linked) > 0 {
		var fetch []string
		for _, id := range linked {
			if !seen[id] {
				seen[id] = true
				fetch = append(fetch, id)
			}
		}
		if len(fetch) > 0 {
			neighbors, err := g.store.Get(ctx, req.Collection, fetch, false)
			if err != nil {
				g.logger.Warnw("graph: link expansion failed", "collection", req.Collection, "error", err)
			} else {
				for _, d := range neighbors {
					docs = append(docs, renderDoc(d.Metadata[models.MetaName], d.Content))
					ids = append(ids, d.ID)
				}
			}
		}
	}
	return docs, ids, nil
}

// computeLinks queries the collection with the node's embedding and
// keeps neighbors within the threshold, skipping the node itself.
func (g *GraphService) computeLinks(ctx context.Context, collection string, vec []float32, selfID string, threshold float32, maxLinks int) ([]string, error) {
	// One extra result since the node itself is usually the best match.
	matches, err := g.store.Query(ctx, collection, vec, maxLinks+1)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, maxLinks)
	for _, m := range matches {
		if m.ID == selfID || m.Distance > threshold {
			continue
		}
		links = append(links, m.ID)
		if len(links) == maxLinks {
			break
		}
	}
	return links, nil
}

func (g *GraphService) effective(threshold float32, maxLinks int) (float32, int) {
	if threshold <= 0 {
		threshold = g.defaultThreshold
	}
	if maxLinks <= 0 {
		maxLinks = g.defaultMaxLinks
	}
	return threshold, maxLinks
}

func filterLinks(links []string, alive map[string]bool) []string {
	out := make([]string, 0, len(links))
	for _, id := range links {
		if alive[id] {
			out = append(out, id)
		}
	}
	return out
}

func renderDoc(name, content string) string {
	if name == "" {
		return content
	}
	return fmt.Sprintf("Name: %s\n%s", name, content)
}
