package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

func newTestGraph(t *testing.T) (*GraphService, *fakeStore, *recordingNotifier) {
	t.Helper()
	store := newFakeStore()
	notifier := &recordingNotifier{}
	graph := NewGraphService(store, &fakeEmbedder{}, notifier, 1.4, 10, zap.NewNop().Sugar())
	return graph, store, notifier
}

func TestInsertNodeComputesLinks(t *testing.T) {
	graph, store, notifier := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	store.queryResults = []QueryMatch{
		{ID: "close", Distance: 0.5},
		{ID: "borderline", Distance: 1.3},
		{ID: "far", Distance: 2.0},
	}

	node, err := graph.InsertNode(ctx, models.NodeInsertRequest{
		Collection: "notes",
		Name:       "go routines",
		Content:    "goroutines are cheap",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, node.NodeID)
	assert.Equal(t, []string{"close", "borderline"}, node.SemanticLinks,
		"matches beyond the distance threshold must not become links")
	assert.Equal(t, 1, notifier.count())

	stored, err := store.Get(ctx, "notes", []string{node.NodeID}, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "go routines", stored[0].Metadata[models.MetaName])
}

func TestInsertNodeExcludesSelfFromLinks(t *testing.T) {
	graph, store, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	// The store returns the node itself as the best match, which is
	// what happens on updates and near-duplicate inserts.
	_, err := graph.UpdateNode(ctx, models.NodeUpdateRequest{
		Collection: "notes",
		NodeID:     "self-id",
		Name:       "a",
		Content:    "b",
	})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Upsert(ctx, "notes", []Document{{ID: "self-id", Content: "b"}}))
	store.queryResults = []QueryMatch{
		{ID: "self-id", Distance: 0.0},
		{ID: "other", Distance: 0.9},
	}
	node, err := graph.UpdateNode(ctx, models.NodeUpdateRequest{
		Collection: "notes",
		NodeID:     "self-id",
		Name:       "a",
		Content:    "b",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, node.SemanticLinks)
}

func TestInsertNodeRespectsMaxLinks(t *testing.T) {
	graph, store, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	store.queryResults = []QueryMatch{
		{ID: "a", Distance: 0.1},
		{ID: "b", Distance: 0.2},
		{ID: "c", Distance: 0.3},
	}
	node, err := graph.InsertNode(ctx, models.NodeInsertRequest{
		Collection: "notes",
		Name:       "n",
		Content:    "c",
		MaxLinks:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, node.SemanticLinks)
}

func TestListNodesFiltersDanglingLinks(t *testing.T) {
	graph, store, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	require.NoError(t, store.Upsert(ctx, "notes", []Document{
		{ID: "n1", Content: "one", Metadata: models.EncodeLinkMetadata("one", nil, []string{"n2", "gone"})},
		{ID: "n2", Content: "two", Metadata: models.EncodeLinkMetadata("two", []string{"n1"}, nil)},
	}))

	nodes, err := graph.ListNodes(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byID := map[string]models.Node{}
	for _, n := range nodes {
		byID[n.NodeID] = n
	}
	assert.Equal(t, []string{"n2"}, byID["n1"].SemanticLinks,
		"links to deleted nodes must be dropped on read")
	assert.Equal(t, []string{"n1"}, byID["n2"].UserLinks,
		"user links pass through untouched")
}

func TestRefactorRewritesLinksInOneBatch(t *testing.T) {
	graph, store, notifier := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	meta := models.EncodeLinkMetadata("imported note", nil, []string{"stale"})
	meta["source_file"] = "/notes/a.md"
	require.NoError(t, store.Upsert(ctx, "notes", []Document{
		{ID: "n1", Content: "one", Embedding: []float32{1}, Metadata: meta},
		{ID: "n2", Content: "two", Embedding: []float32{2}, Metadata: models.EncodeLinkMetadata("two", nil, nil)},
	}))
	store.upserts = 0
	store.queryResults = []QueryMatch{
		{ID: "n1", Distance: 0.0},
		{ID: "n2", Distance: 0.4},
	}

	require.NoError(t, graph.Refactor(ctx, models.RefactorRequest{Collection: "notes"}))

	assert.Equal(t, 1, store.upserts, "refactor writes all nodes in a single batch")
	assert.Equal(t, 1, notifier.count(), "refactor emits one notification")

	docs, err := store.Get(ctx, "notes", []string{"n1"}, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	node := models.DecodeNode(docs[0].ID, docs[0].Content, docs[0].Metadata)
	assert.Equal(t, []string{"n2"}, node.SemanticLinks, "stale links replaced, self excluded")
	assert.Equal(t, "/notes/a.md", docs[0].Metadata["source_file"],
		"refactor keeps metadata beyond the link fields")
}

func TestRetrieveAppliesThresholdAndFollowsLinks(t *testing.T) {
	graph, store, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	require.NoError(t, store.Upsert(ctx, "notes", []Document{
		{ID: "hit", Content: "hit content", Metadata: models.EncodeLinkMetadata("hit", nil, []string{"neighbor"})},
		{ID: "neighbor", Content: "neighbor content", Metadata: models.EncodeLinkMetadata("neighbor", nil, nil)},
	}))
	store.queryResults = []QueryMatch{
		{ID: "hit", Content: "hit content", Distance: 0.3,
			Metadata: models.EncodeLinkMetadata("hit", nil, []string{"neighbor"})},
		{ID: "toofar", Content: "far content", Distance: 3.0,
			Metadata: models.EncodeLinkMetadata("toofar", nil, nil)},
	}

	docs, ids, err := graph.Retrieve(ctx, models.QueryRequest{
		Collection:  "notes",
		Query:       "hit",
		FollowLinks: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hit", "neighbor"}, ids)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0], "hit content")
	assert.Contains(t, docs[1], "neighbor content")
}

func TestSearchReturnsMatches(t *testing.T) {
	graph, store, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	store.queryResults = []QueryMatch{
		{ID: "n1", Content: "alpha", Distance: 0.2,
			Metadata: models.EncodeLinkMetadata("first", nil, nil)},
	}
	matches, err := graph.Search(ctx, models.SearchRequest{Collection: "notes", Query: "alpha"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "first", matches[0].Name)
	assert.Equal(t, float32(0.2), matches[0].Distance)
}

func TestDeleteNodeLeavesOtherNodesAlone(t *testing.T) {
	graph, store, notifier := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "notes"))

	require.NoError(t, store.Upsert(ctx, "notes", []Document{
		{ID: "n1", Content: "one", Metadata: models.EncodeLinkMetadata("one", nil, []string{"n2"})},
		{ID: "n2", Content: "two", Metadata: models.EncodeLinkMetadata("two", nil, nil)},
	}))
	notifierBefore := notifier.count()

	require.NoError(t, graph.DeleteNode(ctx, "notes", "n2"))
	assert.Equal(t, notifierBefore+1, notifier.count())

	docs, err := store.Get(ctx, "notes", nil, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "n1", docs[0].ID)
}
