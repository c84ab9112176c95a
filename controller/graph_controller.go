package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wevn/wevn/models"
	"github.com/wevn/wevn/services"
)

// GraphController exposes collection and node management over HTTP.
type GraphController struct {
	graph *services.GraphService
}

func NewGraphController(graph *services.GraphService) *GraphController {
	return &GraphController{graph: graph}
}

func (ctrl *GraphController) ListCollections(c *gin.Context) {
	collections, err := ctrl.graph.ListCollections(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if collections == nil {
		collections = []models.CollectionInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (ctrl *GraphController) CreateCollection(c *gin.Context) {
	var req models.CollectionNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.graph.CreateCollection(c.Request.Context(), req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "created"})
}

func (ctrl *GraphController) DeleteCollection(c *gin.Context) {
	var req models.CollectionNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.graph.DeleteCollection(c.Request.Context(), req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "deleted"})
}

func (ctrl *GraphController) RenameCollection(c *gin.Context) {
	var req models.CollectionRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.graph.RenameCollection(c.Request.Context(), req.OldName, req.NewName); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "renamed"})
}

func (ctrl *GraphController) ListNodes(c *gin.Context) {
	var req models.CollectionNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	nodes, err := ctrl.graph.ListNodes(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	if nodes == nil {
		nodes = []models.Node{}
	}
	c.JSON(http.StatusOK, gin.H{"nodes": nodes})
}

func (ctrl *GraphController) InsertNode(c *gin.Context) {
	var req models.NodeInsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := ctrl.graph.InsertNode(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "inserted", "node": node})
}

func (ctrl *GraphController) UpdateNode(c *gin.Context) {
	var req models.NodeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := ctrl.graph.UpdateNode(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "node": node})
}

func (ctrl *GraphController) DeleteNode(c *gin.Context) {
	var req models.NodeDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ctrl.graph.DeleteNode(c.Request.Context(), req.Collection, req.NodeID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "deleted"})
}

func (ctrl *GraphController) Refactor(c *gin.Context) {
	var req models.RefactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := ctrl.graph.Refactor(c.Request.Context(), req)
	var partial *services.RefactorPartialError
	if err != nil {
		if errors.As(err, &partial) {
			failed := make([]string, 0, len(partial.Failed))
			for id := range partial.Failed {
				failed = append(failed, id)
			}
			c.JSON(http.StatusOK, gin.H{"status": "partial", "failed_nodes": failed})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "refactored"})
}

func (ctrl *GraphController) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	matches, err := ctrl.graph.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if matches == nil {
		matches = []models.SearchMatch{}
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}
