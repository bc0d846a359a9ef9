package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// StatsHandler serves dashboard statistics.
type StatsHandler struct {
	stats DashboardReader
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(stats DashboardReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// Dashboard handles GET /v1/dashboard/stats
func (h *StatsHandler) Dashboard(c *gin.Context) {
	stats, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	if stats.Products == nil {
		stats.Products = []models.SourceCount{}
	}
	utils.Success(c, http.StatusOK, "Dashboard stats retrieved", stats)
}
