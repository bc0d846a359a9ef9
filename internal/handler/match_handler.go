package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/service"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// MatchHandler handles matching and match management endpoints.
type MatchHandler struct {
	runner MatchRunner
	manual ManualMatcher
}

// NewMatchHandler constructs a MatchHandler.
func NewMatchHandler(runner MatchRunner, manual ManualMatcher) *MatchHandler {
	return &MatchHandler{runner: runner, manual: manual}
}

type generateRequest struct {
	ConfidenceThreshold *float64 `json:"confidenceThreshold"`
}

// Generate handles POST /v1/matches/generate
func (h *MatchHandler) Generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
			return
		}
	}
	threshold := h.runner.DefaultThreshold()
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}

	// a client disconnect must not abort a run halfway through its writes
	summary, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), threshold)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Matching completed", summary)
}

// List handles GET /v1/matches
func (h *MatchHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	filter := models.MatchFilter{
		Source:          c.Query("source"),
		ViolationsOnly:  queryBool(c, "violations_only"),
		IncludeRejected: queryBool(c, "include_rejected"),
		Page:            page,
		Limit:           limit,
	}
	if v := c.Query("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			utils.Error(c, http.StatusBadRequest, "INVALID_PARAMETER", "min_confidence must be between 0 and 1")
			return
		}
		filter.MinConfidence = f
	}

	matches, total, err := h.runner.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Matches retrieved", nonNil(matches), page, limit, total)
}

// Get handles GET /v1/matches/:id
func (h *MatchHandler) Get(c *gin.Context) {
	m, err := h.runner.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Match retrieved", m)
}

// History handles GET /v1/violations/history
func (h *MatchHandler) History(c *gin.Context) {
	page, limit := pagination(c)
	rows, total, err := h.runner.History(c.Request.Context(), c.Query("match_id"), page, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Violation history retrieved", nonNil(rows), page, limit, total)
}

// CreateManual handles POST /v1/matches/manual
func (h *MatchHandler) CreateManual(c *gin.Context) {
	var req service.ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "MISSING_FIELD", "idcProductId and competitorProductId are required")
		return
	}
	m, err := h.manual.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Manual match created", m)
}

// ListManual handles GET /v1/matches/manual
func (h *MatchHandler) ListManual(c *gin.Context) {
	page, limit := pagination(c)
	matches, total, err := h.manual.ListManual(c.Request.Context(), page, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Manual matches retrieved", nonNil(matches), page, limit, total)
}

// Reject handles POST /v1/matches/:id/reject
func (h *MatchHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	if err := h.manual.Reject(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Match rejected", gin.H{"id": id, "isRejected": true})
}

// Delete handles DELETE /v1/matches/:id
func (h *MatchHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.manual.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Match deleted", gin.H{"id": id})
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
