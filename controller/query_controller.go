package controller

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wevn/wevn/models"
	"github.com/wevn/wevn/services"
)

// QueryController answers questions over a collection, streaming or
// in one shot.
type QueryController struct {
	stream *services.StreamService
}

func NewQueryController(stream *services.StreamService) *QueryController {
	return &QueryController{stream: stream}
}

// Stream answers a question as an NDJSON event stream. The ids of the
// retrieved context nodes, known before the first event, travel in the
// X-Retrieved-Ids header.
func (ctrl *QueryController) Stream(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started := false
	enc := json.NewEncoder(c.Writer)
	err := ctrl.stream.Run(c.Request.Context(), req,
		func(ids []string) error {
			c.Header("Content-Type", "application/x-ndjson")
			c.Header("X-Retrieved-Ids", strings.Join(ids, ","))
			c.Status(http.StatusOK)
			started = true
			return nil
		},
		func(ev models.StreamEvent) error {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			c.Writer.Flush()
			return nil
		})
	if err != nil && !started {
		// Retrieval or readiness failed before anything was written.
		respondError(c, err)
	}
}

// Ask is the blocking variant: one structured response or an error.
func (ctrl *QueryController) Ask(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, ids, err := ctrl.stream.Ask(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("X-Retrieved-Ids", strings.Join(ids, ","))
	c.JSON(http.StatusOK, resp)
}
