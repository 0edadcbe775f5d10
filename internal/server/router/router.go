package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/equiptrack/internal/metrics"
	"github.com/mamadbah2/equiptrack/internal/server/handlers"
)

// Handlers groups the route adapters mounted by New.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Equipment *handlers.EquipmentHandler
	Loans     *handlers.LoanHandler
	Reports   *handlers.ReportHandler
}

// Options carries the cross-cutting router settings.
type Options struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, opts Options, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxImageBytes
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(metricsMiddleware(opts.Metrics))
	useCORS(r, opts.AllowedOrigins)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", h.Auth.SignUp)
	auth.POST("/signin", h.Auth.SignIn)
	auth.POST("/signout", h.Auth.SignOut)
	auth.POST("/signout-all", h.Auth.SignOutEverywhere)
	auth.GET("/session", h.Auth.RequireSession(), h.Auth.Session)

	protected := api.Group("")
	protected.Use(h.Auth.RequireSession())

	equipment := protected.Group("/equipment")
	equipment.GET("", h.Equipment.List)
	equipment.POST("", h.Equipment.Create)
	equipment.GET("/available", h.Equipment.Available)
	equipment.GET("/:id", h.Equipment.Get)
	equipment.PUT("/:id", h.Equipment.Update)
	equipment.DELETE("/:id", h.Equipment.Delete)
	equipment.PATCH("/:id/status", h.Equipment.ChangeStatus)
	equipment.PUT("/:id/image", h.Equipment.UploadImage)
	equipment.GET("/:id/image", h.Equipment.Image)
	equipment.DELETE("/:id/image", h.Equipment.RemoveImage)

	borrowings := protected.Group("/borrowings")
	borrowings.GET("", h.Loans.ListBorrowings)
	borrowings.POST("", h.Loans.CreateBorrowing)
	borrowings.GET("/summary", h.Loans.BorrowingSummary)
	borrowings.GET("/:id", h.Loans.GetBorrowing)
	borrowings.PATCH("/:id", h.Loans.UpdateBorrowing)
	borrowings.DELETE("/:id", h.Loans.DeleteBorrowing)
	borrowings.POST("/:id/return", h.Loans.ReturnBorrowing)

	rentals := protected.Group("/rentals")
	rentals.GET("", h.Loans.ListRentals)
	rentals.POST("", h.Loans.CreateRental)
	rentals.GET("/summary", h.Loans.RentalSummary)
	rentals.GET("/:id", h.Loans.GetRental)
	rentals.PATCH("/:id", h.Loans.UpdateRental)
	rentals.DELETE("/:id", h.Loans.DeleteRental)
	rentals.POST("/:id/complete", h.Loans.CompleteRental)
	rentals.POST("/:id/cancel", h.Loans.CancelRental)

	protected.GET("/dashboard", h.Reports.Dashboard)
	protected.GET("/reports", h.Reports.Report)
	protected.GET("/reports/snapshots", h.Reports.Snapshots)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// useCORS allows the configured browser origins. Without any configured
// origin every origin is allowed, without credentials.
func useCORS(r *gin.Engine, origins []string) {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	r.Use(cors.New(cfg))
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}
