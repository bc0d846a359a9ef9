package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_map/internal/utils"
)

// EmbeddingHandler handles embedding maintenance endpoints.
type EmbeddingHandler struct {
	embeddings EmbeddingUpdater
}

// NewEmbeddingHandler constructs an EmbeddingHandler.
func NewEmbeddingHandler(embeddings EmbeddingUpdater) *EmbeddingHandler {
	return &EmbeddingHandler{embeddings: embeddings}
}

// Update handles POST /v1/embeddings/update
func (h *EmbeddingHandler) Update(c *gin.Context) {
	res, err := h.embeddings.Update(
		context.WithoutCancel(c.Request.Context()),
		c.Query("source"),
		queryInt(c, "limit", 0),
		queryBool(c, "dry_run"),
	)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Embeddings updated", res)
}
