package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/service/inventory"
	"github.com/mamadbah2/equiptrack/internal/storage"
)

// MaxImageBytes bounds an uploaded equipment image.
const MaxImageBytes = 10 << 20

// EquipmentService is the inventory surface the equipment routes use.
type EquipmentService interface {
	Create(ctx context.Context, in models.EquipmentInput) (models.EquipmentUnit, error)
	Get(ctx context.Context, id string) (models.EquipmentUnit, error)
	List(ctx context.Context, q inventory.ListQuery) (models.Page[models.EquipmentUnit], error)
	AvailableUnits(ctx context.Context) ([]models.EquipmentUnit, error)
	Update(ctx context.Context, id string, in models.EquipmentInput) (models.EquipmentUnit, error)
	ChangeStatus(ctx context.Context, id, status string) (models.EquipmentUnit, error)
	Delete(ctx context.Context, id string) error
	SetImage(ctx context.Context, id, name, contentType string, body io.Reader) (models.EquipmentUnit, error)
	RemoveImage(ctx context.Context, id string) (models.EquipmentUnit, error)
	OpenImage(ctx context.Context, id string) (storage.Info, io.ReadCloser, error)
}

// EquipmentHandler serves the equipment inventory.
type EquipmentHandler struct {
	svc    EquipmentService
	logger *zap.Logger
}

// NewEquipmentHandler constructs the equipment routes adapter.
func NewEquipmentHandler(svc EquipmentService, logger *zap.Logger) *EquipmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EquipmentHandler{svc: svc, logger: logger}
}

type statusRequest struct {
	Status string `json:"status"`
}

// List returns a page of units filtered by search, status and category.
func (h *EquipmentHandler) List(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), inventory.ListQuery{
		Search:         c.Query("search"),
		Status:         c.Query("status"),
		Category:       c.Query("category"),
		IncludeDeleted: boolQuery(c, "includeDeleted"),
		Page:           pageFromQuery(c),
	})
	if err != nil {
		respondError(c, h.logger, "failed listing equipment", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Available returns the units that can be lent or rented right now.
func (h *EquipmentHandler) Available(c *gin.Context) {
	units, err := h.svc.AvailableUnits(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "failed listing available equipment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": units, "total": len(units)})
}

// Create registers a new unit.
func (h *EquipmentHandler) Create(c *gin.Context) {
	var in models.EquipmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid equipment payload", err)
		return
	}
	unit, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, "failed creating equipment", err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

// Get returns one unit.
func (h *EquipmentHandler) Get(c *gin.Context) {
	unit, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "failed loading equipment", err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// Update replaces the editable attributes of a unit.
func (h *EquipmentHandler) Update(c *gin.Context) {
	var in models.EquipmentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid equipment payload", err)
		return
	}
	unit, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, h.logger, "failed updating equipment", err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// ChangeStatus applies a manual status change.
func (h *EquipmentHandler) ChangeStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, "invalid status payload", err)
		return
	}
	unit, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.logger, "failed changing equipment status", err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// Delete soft deletes a unit.
func (h *EquipmentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "failed deleting equipment", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadImage stores the multipart "image" file as the unit's picture.
func (h *EquipmentHandler) UploadImage(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		badRequest(c, h.logger, "missing image file", err)
		return
	}
	if header.Size > MaxImageBytes {
		badRequest(c, h.logger, "image too large", fmt.Errorf("image of %d bytes", header.Size))
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, h.logger, "unreadable image file", err)
		return
	}
	defer file.Close()

	unit, err := h.svc.SetImage(c.Request.Context(), c.Param("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondError(c, h.logger, "failed storing equipment image", err)
		return
	}
	c.JSON(http.StatusOK, unit)
}

// Image streams the stored picture of a unit.
func (h *EquipmentHandler) Image(c *gin.Context) {
	info, body, err := h.svc.OpenImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "failed reading equipment image", err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, body, nil)
}

// RemoveImage deletes the picture of a unit.
func (h *EquipmentHandler) RemoveImage(c *gin.Context) {
	unit, err := h.svc.RemoveImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "failed removing equipment image", err)
		return
	}
	c.JSON(http.StatusOK, unit)
}
