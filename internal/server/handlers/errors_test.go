package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/domain/models"
)

func TestStatusFor(t *testing.T) {
	partial := &models.PartialFailureError{Op: "open borrowing", Cause: models.ErrNotFound, Compensate: errors.New("boom")}

	cases := map[error]int{
		models.NewValidationError("name", "is required"):  http.StatusBadRequest,
		fmt.Errorf("equipment x: %w", models.ErrNotFound): http.StatusNotFound,
		models.ErrIllegalTransition:                       http.StatusConflict,
		models.ErrAlreadyOnLoan:                           http.StatusConflict,
		models.ErrLoanClosed:                              http.StatusConflict,
		models.ErrStatusChanged:                           http.StatusConflict,
		models.ErrOpenLoan:                                http.StatusConflict,
		models.ErrEmailTaken:                              http.StatusConflict,
		models.ErrUnauthorized:                            http.StatusUnauthorized,
		models.ErrRateLimited:                             http.StatusTooManyRequests,
		partial:                                           http.StatusInternalServerError,
		errors.New("connection refused"):                  http.StatusInternalServerError,
		fmt.Errorf("wrapped: %w", models.ErrWriteFailure): http.StatusInternalServerError,
		fmt.Errorf("sign in: %w", fmt.Errorf("x: %w", models.ErrUnauthorized)): http.StatusUnauthorized,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestRespondErrorHidesInternals(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	respondError(c, zap.NewNop(), "failed", errors.New("mongo: secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")

	rec = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(rec)
	respondError(c, zap.NewNop(), "failed", &models.PartialFailureError{Op: "return", Cause: errors.New("a"), Compensate: errors.New("b")})
	assert.Contains(t, rec.Body.String(), partialFailureMessage)
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for header, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("Authorization", header)
		assert.Equal(t, want, bearerToken(c), header)
	}
}

func TestDateQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?from=2024-03-01&to=2024-03-01&at=2024-03-01T10:00:00Z&bad=tomorrow", nil)

	from, err := dateQuery(c, "from", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *from)

	to, err := dateQuery(c, "to", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), *to)

	at, err := dateQuery(c, "at", true)
	require.NoError(t, err)
	assert.Equal(t, 10, at.Hour())

	missing, err := dateQuery(c, "missing", false)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = dateQuery(c, "bad", false)
	assert.ErrorIs(t, err, models.ErrValidation)
}
