package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
)

// CatalogHandler handles catalog endpoints.
type CatalogHandler struct {
	catalog CatalogManager
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog CatalogManager) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Ingest handles POST /v1/catalog/:source/products
func (h *CatalogHandler) Ingest(c *gin.Context) {
	var records []models.Product
	if err := c.ShouldBindJSON(&records); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Body must be a JSON array of products")
		return
	}
	res, err := h.catalog.Ingest(c.Request.Context(), c.Param("source"), records)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Products ingested", res)
}

// Sync handles POST /v1/catalog/:source/sync
func (h *CatalogHandler) Sync(c *gin.Context) {
	res, err := h.catalog.SyncFeed(c.Request.Context(), c.Param("source"))
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Feed synced", res)
}

// DeleteSource handles DELETE /v1/catalog/:source
func (h *CatalogHandler) DeleteSource(c *gin.Context) {
	source := c.Param("source")
	n, err := h.catalog.DeleteSource(c.Request.Context(), source)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Source deleted", gin.H{"source": source, "deleted": n})
}

// List handles GET /v1/catalog/products
func (h *CatalogHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	products, total, err := h.catalog.List(c.Request.Context(), models.ProductFilter{
		Source: c.Query("source"),
		Brand:  c.Query("brand"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Products retrieved", nonNil(products), page, limit, total)
}

// Get handles GET /v1/catalog/products/:id
func (h *CatalogHandler) Get(c *gin.Context) {
	p, history, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Product retrieved", gin.H{
		"product":      p,
		"priceHistory": nonNil(history),
	})
}

// FixVendors handles POST /v1/catalog/vendors/fix
func (h *CatalogHandler) FixVendors(c *gin.Context) {
	dryRun := queryBool(c, "dry_run")
	fixes, err := h.catalog.FixVendors(c.Request.Context(), dryRun)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Vendors checked", gin.H{
		"dryRun": dryRun,
		"count":  len(fixes),
		"fixes":  nonNil(fixes),
	})
}
