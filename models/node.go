package models

import "encoding/json"

// Metadata keys used when persisting a node into the vector store.
// Link arrays are stored as JSON-encoded strings inside the metadata
// map, not as native arrays; that is the wire format the store speaks.
const (
	MetaName          = "name"
	MetaUserLinks     = "user_links"
	MetaSemanticLinks = "s_links"
)

// Node is a single user-authored content unit inside a collection.
// UserLinks are curated by the user and never touched by the server;
// SemanticLinks are recomputed by the graph service and are a snapshot,
// not a live view: they go stale until the next write or refactor.
type Node struct {
	NodeID        string   `json:"node_id"`
	Name          string   `json:"name"`
	Content       string   `json:"content"`
	UserLinks     []string `json:"user_links"`
	SemanticLinks []string `json:"s_links"`
}

// EncodeLinkMetadata packs a node's name and link arrays into the flat
// string metadata map the vector store persists.
func EncodeLinkMetadata(name string, userLinks, semanticLinks []string) map[string]string {
	return map[string]string{
		MetaName:          name,
		MetaUserLinks:     encodeLinks(userLinks),
		MetaSemanticLinks: encodeLinks(semanticLinks),
	}
}

// DecodeNode rebuilds a Node from a stored document and its metadata.
// Malformed or missing link metadata decodes to an empty slice rather
// than failing the whole read.
func DecodeNode(id, content string, metadata map[string]string) Node {
	return Node{
		NodeID:        id,
		Name:          metadata[MetaName],
		Content:       content,
		UserLinks:     DecodeLinks(metadata[MetaUserLinks]),
		SemanticLinks: DecodeLinks(metadata[MetaSemanticLinks]),
	}
}

// DecodeLinks parses a JSON-encoded string array, defensively: anything
// that is not a well-formed array yields an empty slice.
func DecodeLinks(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var links []string
	if err := json.Unmarshal([]byte(raw), &links); err != nil || links == nil {
		return []string{}
	}
	return links
}

func encodeLinks(links []string) string {
	if links == nil {
		links = []string{}
	}
	b, _ := json.Marshal(links)
	return string(b)
}
