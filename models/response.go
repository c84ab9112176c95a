package models

import "fmt"

// StatusResponse is the generic success envelope.
type StatusResponse struct {
	Status string `json:"status"`
}

// CollectionInfo describes one collection in a listing.
type CollectionInfo struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// SearchMatch is one ranked result of a similarity search.
type SearchMatch struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Content  string  `json:"content"`
	Distance float32 `json:"distance"`
}

// HistoryMessage is a single transcript entry returned to the client.
type HistoryMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// StructuredResponse is the shape every completed model answer must
// satisfy. Answer is mandatory; the auxiliary fields default to empty
// so clients can rely on them being present.
type StructuredResponse struct {
	Answer     string            `json:"answer"`
	CodeBlocks []string          `json:"code_blocks"`
	Commands   []string          `json:"commands"`
	References []string          `json:"references"`
	Metadata   map[string]string `json:"metadata"`
}

// Validate checks the parsed object against the required shape and
// fills in the empty defaults for the auxiliary fields.
func (r *StructuredResponse) Validate() error {
	if r.Answer == "" {
		return fmt.Errorf("structured response missing required field %q", "answer")
	}
	if r.CodeBlocks == nil {
		r.CodeBlocks = []string{}
	}
	if r.Commands == nil {
		r.Commands = []string{}
	}
	if r.References == nil {
		r.References = []string{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	return nil
}

// NodeSummary is the structured output of the history summarizer: a
// short title and a self-contained paragraph, turned into a node.
type NodeSummary struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Validate rejects summaries missing either field.
func (s *NodeSummary) Validate() error {
	if s.Name == "" || s.Content == "" {
		return fmt.Errorf("summary must have both name and content")
	}
	return nil
}
