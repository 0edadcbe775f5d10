package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/service/loans"
)

// LoanService is the loan surface the borrowing and rental routes use.
type LoanService interface {
	OpenBorrowing(ctx context.Context, in models.BorrowingInput) (models.LoanRecord, error)
	ReturnBorrowing(ctx context.Context, id string) (models.LoanRecord, error)
	UpdateBorrowing(ctx context.Context, id string, in loans.BorrowingUpdate) (models.LoanRecord, error)
	DeleteBorrowing(ctx context.Context, id string) error
	GetBorrowing(ctx context.Context, id string) (models.LoanView, error)
	ListBorrowings(ctx context.Context, q loans.Query) (models.Page[models.LoanView], error)

	OpenRental(ctx context.Context, in models.RentalInput) (models.LoanRecord, error)
	CompleteRental(ctx context.Context, id string) (models.LoanRecord, error)
	CancelRental(ctx context.Context, id string) (models.LoanRecord, error)
	UpdateRental(ctx context.Context, id string, in loans.RentalUpdate) (models.LoanRecord, error)
	DeleteRental(ctx context.Context, id string) error
	GetRental(ctx context.Context, id string) (models.LoanView, error)
	ListRentals(ctx context.Context, q loans.Query) (models.Page[models.LoanView], error)
}

// LoanSummaries provides the per-kind summary figures.
type LoanSummaries interface {
	BorrowingSummary(ctx context.Context) (models.BorrowingStats, error)
	RentalSummary(ctx context.Context) (models.RentalStats, error)
}

// LoanHandler serves borrowings and rentals.
type LoanHandler struct {
	svc       LoanService
	summaries LoanSummaries
	logger    *zap.Logger
}

// NewLoanHandler constructs the loan routes adapter.
func NewLoanHandler(svc LoanService, summaries LoanSummaries, logger *zap.Logger) *LoanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoanHandler{svc: svc, summaries: summaries, logger: logger}
}

func loanQuery(c *gin.Context) loans.Query {
	return loans.Query{
		Search:         c.Query("search"),
		Status:         c.Query("status"),
		EquipmentID:    c.Query("equipmentId"),
		IncludeDeleted: boolQuery(c, "includeDeleted"),
		Page:           pageFromQuery(c),
	}
}

func (h *LoanHandler) record(c *gin.Context, msg string, status int, record models.LoanRecord, err error) {
	if err != nil {
		respondError(c, h.logger, msg, err)
		return
	}
	c.JSON(status, record)
}

// ListBorrowings returns a page of enriched borrowings.
func (h *LoanHandler) ListBorrowings(c *gin.Context) {
	page, err := h.svc.ListBorrowings(c.Request.Context(), loanQuery(c))
	if err != nil {
		respondError(c, h.logger, "failed listing borrowings", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateBorrowing lends a unit.
func (h *LoanHandler) CreateBorrowing(c *gin.Context) {
	var in models.BorrowingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid borrowing payload", err)
		return
	}
	record, err := h.svc.OpenBorrowing(c.Request.Context(), in)
	h.record(c, "failed opening borrowing", http.StatusCreated, record, err)
}

// GetBorrowing returns one enriched borrowing.
func (h *LoanHandler) GetBorrowing(c *gin.Context) {
	view, err := h.svc.GetBorrowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "failed loading borrowing", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateBorrowing applies a partial update.
func (h *LoanHandler) UpdateBorrowing(c *gin.Context) {
	var in loans.BorrowingUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid borrowing payload", err)
		return
	}
	record, err := h.svc.UpdateBorrowing(c.Request.Context(), c.Param("id"), in)
	h.record(c, "failed updating borrowing", http.StatusOK, record, err)
}

// ReturnBorrowing closes a borrowing and frees its unit.
func (h *LoanHandler) ReturnBorrowing(c *gin.Context) {
	record, err := h.svc.ReturnBorrowing(c.Request.Context(), c.Param("id"))
	h.record(c, "failed returning borrowing", http.StatusOK, record, err)
}

// DeleteBorrowing soft deletes a closed borrowing.
func (h *LoanHandler) DeleteBorrowing(c *gin.Context) {
	if err := h.svc.DeleteBorrowing(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "failed deleting borrowing", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// BorrowingSummary returns the borrowing figures.
func (h *LoanHandler) BorrowingSummary(c *gin.Context) {
	stats, err := h.summaries.BorrowingSummary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "failed computing borrowing summary", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListRentals returns a page of enriched rentals.
func (h *LoanHandler) ListRentals(c *gin.Context) {
	page, err := h.svc.ListRentals(c.Request.Context(), loanQuery(c))
	if err != nil {
		respondError(c, h.logger, "failed listing rentals", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateRental rents a unit.
func (h *LoanHandler) CreateRental(c *gin.Context) {
	var in models.RentalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid rental payload", err)
		return
	}
	record, err := h.svc.OpenRental(c.Request.Context(), in)
	h.record(c, "failed opening rental", http.StatusCreated, record, err)
}

// GetRental returns one enriched rental.
func (h *LoanHandler) GetRental(c *gin.Context) {
	view, err := h.svc.GetRental(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "failed loading rental", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateRental applies a partial update.
func (h *LoanHandler) UpdateRental(c *gin.Context) {
	var in loans.RentalUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, h.logger, "invalid rental payload", err)
		return
	}
	record, err := h.svc.UpdateRental(c.Request.Context(), c.Param("id"), in)
	h.record(c, "failed updating rental", http.StatusOK, record, err)
}

// CompleteRental closes a rental as completed.
func (h *LoanHandler) CompleteRental(c *gin.Context) {
	record, err := h.svc.CompleteRental(c.Request.Context(), c.Param("id"))
	h.record(c, "failed completing rental", http.StatusOK, record, err)
}

// CancelRental closes a rental as cancelled.
func (h *LoanHandler) CancelRental(c *gin.Context) {
	record, err := h.svc.CancelRental(c.Request.Context(), c.Param("id"))
	h.record(c, "failed cancelling rental", http.StatusOK, record, err)
}

// DeleteRental soft deletes a closed rental.
func (h *LoanHandler) DeleteRental(c *gin.Context) {
	if err := h.svc.DeleteRental(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "failed deleting rental", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RentalSummary returns the rental figures.
func (h *LoanHandler) RentalSummary(c *gin.Context) {
	stats, err := h.summaries.RentalSummary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "failed computing rental summary", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
