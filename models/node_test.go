package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkMetadataRoundTrip(t *testing.T) {
	meta := EncodeLinkMetadata("my note", []string{"u1", "u2"}, []string{"s1"})
	node := DecodeNode("id-1", "body", meta)

	assert.Equal(t, "id-1", node.NodeID)
	assert.Equal(t, "my note", node.Name)
	assert.Equal(t, "body", node.Content)
	assert.Equal(t, []string{"u1", "u2"}, node.UserLinks)
	assert.Equal(t, []string{"s1"}, node.SemanticLinks)
}

func TestEncodeLinkMetadataNilSlices(t *testing.T) {
	meta := EncodeLinkMetadata("n", nil, nil)
	assert.Equal(t, "[]", meta[MetaUserLinks])
	assert.Equal(t, "[]", meta[MetaSemanticLinks])
}

func TestDecodeLinksMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"a":1}`, "null", "[1,2]"} {
		links := DecodeLinks(raw)
		assert.NotNil(t, links, "raw %q must decode to an empty slice", raw)
		assert.Empty(t, links)
	}
}

func TestDecodeNodeMissingMetadata(t *testing.T) {
	node := DecodeNode("id", "content", map[string]string{})
	assert.Empty(t, node.Name)
	assert.Empty(t, node.UserLinks)
	assert.Empty(t, node.SemanticLinks)
}

func TestStructuredResponseValidate(t *testing.T) {
	resp := StructuredResponse{Answer: "hi"}
	assert.NoError(t, resp.Validate())
	assert.NotNil(t, resp.CodeBlocks)
	assert.NotNil(t, resp.Commands)
	assert.NotNil(t, resp.References)
	assert.NotNil(t, resp.Metadata)

	empty := StructuredResponse{}
	assert.Error(t, empty.Validate())
}

func TestNodeSummaryValidate(t *testing.T) {
	assert.NoError(t, (&NodeSummary{Name: "n", Content: "c"}).Validate())
	assert.Error(t, (&NodeSummary{Name: "n"}).Validate())
	assert.Error(t, (&NodeSummary{Content: "c"}).Validate())
}
