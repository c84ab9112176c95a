package models

// CollectionNameRequest is used for creating and deleting collections.
type CollectionNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// CollectionRenameRequest renames a collection.
type CollectionRenameRequest struct {
	OldName string `json:"d_old" binding:"required"`
	NewName string `json:"d_new" binding:"required"`
}

// NodeInsertRequest creates a new node in a collection.
type NodeInsertRequest struct {
	Collection        string   `json:"collection" binding:"required"`
	Name              string   `json:"name" binding:"required"`
	Content           string   `json:"content" binding:"required"`
	UserLinks         []string `json:"user_links"`
	DistanceThreshold float32  `json:"distance_threshold"`
	MaxLinks          int      `json:"max_links"`
}

// NodeUpdateRequest replaces a node's content, name and links.
type NodeUpdateRequest struct {
	Collection        string   `json:"collection" binding:"required"`
	NodeID            string   `json:"node_id" binding:"required"`
	Name              string   `json:"name" binding:"required"`
	Content           string   `json:"content" binding:"required"`
	UserLinks         []string `json:"user_links"`
	DistanceThreshold float32  `json:"distance_threshold"`
	MaxLinks          int      `json:"max_links"`
}

// NodeDeleteRequest removes a node from a collection.
type NodeDeleteRequest struct {
	Collection string `json:"collection" binding:"required"`
	NodeID     string `json:"node_id" binding:"required"`
}

// RefactorRequest recomputes semantic links for every node in a collection.
type RefactorRequest struct {
	Collection        string  `json:"collection" binding:"required"`
	DistanceThreshold float32 `json:"distance_threshold"`
	MaxLinks          int     `json:"max_links"`
}

// SearchRequest is a plain similarity search over one collection.
type SearchRequest struct {
	Collection string `json:"collection" binding:"required"`
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"max_results"`
}

// QueryRequest asks the assistant a question against one collection,
// within one conversation.
type QueryRequest struct {
	Collection        string  `json:"collection" binding:"required"`
	Query             string  `json:"query" binding:"required"`
	ConversationID    string  `json:"conversation_id" binding:"required"`
	MaxResults        int     `json:"max_results"`
	DistanceThreshold float32 `json:"distance_threshold"`
	// FollowLinks additionally pulls in the semantic neighbors of the
	// retrieved nodes as context.
	FollowLinks bool `json:"follow_links"`
}

// HistoryRequest fetches the transcript of one session.
type HistoryRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// ClearHistoryRequest discards a session's transcript and summary.
type ClearHistoryRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// SummarizeHistoryRequest condenses a session into a new node.
type SummarizeHistoryRequest struct {
	SessionID         string  `json:"session_id" binding:"required"`
	Query             string  `json:"query"`
	Collection        string  `json:"collection" binding:"required"`
	MaxResults        int     `json:"max_results"`
	DistanceThreshold float32 `json:"distance_threshold"`
}
