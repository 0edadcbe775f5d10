package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

const partialFailureMessage = "operation partially applied, records need manual reconciliation"

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrPartialFailure):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, models.ErrAlreadyOnLoan),
		errors.Is(err, models.ErrStatusChanged),
		errors.Is(err, models.ErrLoanClosed),
		errors.Is(err, models.ErrOpenLoan),
		errors.Is(err, models.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	switch {
	case errors.Is(err, models.ErrPartialFailure):
		logger.Error(msg, zap.Error(err))
		body["error"] = partialFailureMessage
	case status >= http.StatusInternalServerError:
		logger.Error(msg, zap.Error(err))
		body["error"] = "internal error"
	default:
		logger.Warn(msg, zap.Error(err))
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		body["fields"] = verr.Fields
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, msg string, err error) {
	logger.Warn(msg, zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pageFromQuery(c *gin.Context) models.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return models.PageRequest{Page: page, Size: size}.Normalize()
}

func boolQuery(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

// dateQuery accepts a plain date or an RFC 3339 timestamp. With endOfDay a
// plain date covers the whole day.
func dateQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, models.NewValidationError(key, "must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return &t, nil
}
