package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wevn/wevn/models"
	"github.com/wevn/wevn/services"
)

// HistoryController reads, clears, and summarizes session history.
type HistoryController struct {
	memory *services.MemoryService
	stream *services.StreamService
	graph  *services.GraphService
}

func NewHistoryController(memory *services.MemoryService, stream *services.StreamService, graph *services.GraphService) *HistoryController {
	return &HistoryController{memory: memory, stream: stream, graph: graph}
}

func (ctrl *HistoryController) Get(c *gin.Context) {
	var req models.HistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgs, err := ctrl.memory.HistoryMessages(c.Request.Context(), req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.HistoryMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (ctrl *HistoryController) Clear(c *gin.Context) {
	var req models.ClearHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.memory.Clear(c.Request.Context(), req.ConversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "cleared"})
}

// Summarize condenses the session into a named note and stores it as a
// node in the target collection.
func (ctrl *HistoryController) Summarize(c *gin.Context) {
	var req models.SummarizeHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	history, err := ctrl.memory.Load(ctx, req.SessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session has no history to summarize"})
		return
	}

	var docs []string
	if req.Query != "" {
		docs, _, err = ctrl.graph.Retrieve(ctx, models.QueryRequest{
			Collection:        req.Collection,
			Query:             req.Query,
			MaxResults:        req.MaxResults,
			DistanceThreshold: req.DistanceThreshold,
		})
		if err != nil {
			respondError(c, err)
			return
		}
	}

	summary, err := ctrl.stream.Summarize(ctx, docs, history)
	if err != nil {
		respondError(c, err)
		return
	}

	node, err := ctrl.graph.InsertNode(ctx, models.NodeInsertRequest{
		Collection:        req.Collection,
		Name:              summary.Name,
		Content:           summary.Content,
		DistanceThreshold: req.DistanceThreshold,
		MaxLinks:          req.MaxResults,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "summarized", "node": node})
}
