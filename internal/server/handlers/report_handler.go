package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/service/reporting"
)

// ReportService is the reporting surface of the dashboard and report routes.
type ReportService interface {
	Report(ctx context.Context, r reporting.Range) (reporting.RangeReport, error)
	DashboardSummary(ctx context.Context) (models.DashboardStats, error)
	Snapshots(ctx context.Context, limit int) ([]models.ReportSnapshot, error)
}

// ReportHandler serves the dashboard, range reports and stored snapshots.
type ReportHandler struct {
	svc    ReportService
	logger *zap.Logger
}

// NewReportHandler constructs the reporting routes adapter.
func NewReportHandler(svc ReportService, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{svc: svc, logger: logger}
}

// Dashboard returns the headline counts.
func (h *ReportHandler) Dashboard(c *gin.Context) {
	stats, err := h.svc.DashboardSummary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "failed computing dashboard", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Report aggregates a range given by ?range= or by ?from=&to=.
func (h *ReportHandler) Report(c *gin.Context) {
	from, err := dateQuery(c, "from", false)
	if err != nil {
		respondError(c, h.logger, "invalid report range", err)
		return
	}
	to, err := dateQuery(c, "to", true)
	if err != nil {
		respondError(c, h.logger, "invalid report range", err)
		return
	}

	report, err := h.svc.Report(c.Request.Context(), reporting.Range{Preset: c.Query("range"), From: from, To: to})
	if err != nil {
		respondError(c, h.logger, "failed building report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Snapshots lists the stored daily snapshots, newest first.
func (h *ReportHandler) Snapshots(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	snapshots, err := h.svc.Snapshots(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "failed listing snapshots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": snapshots, "total": len(snapshots)})
}
