package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares.
func New(sessions *handlers.SessionHandler, readings *handlers.ReadingSessionHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(handlers.Identity())

	s := api.Group("/sessions")
	s.POST("", sessions.Create)
	s.GET("", sessions.List)
	s.GET("/:id", sessions.Get)
	s.DELETE("/:id", sessions.Delete)
	s.POST("/:id/start", sessions.Start)
	s.POST("/:id/pause", sessions.Pause)
	s.POST("/:id/complete", sessions.Complete)
	s.POST("/:id/cancel", sessions.Cancel)
	s.GET("/:id/expected", sessions.Expected)
	s.POST("/:id/sync-expected", sessions.SyncExpected)
	s.POST("/:id/upload-results", sessions.UploadResults)
	s.POST("/:id/readings", sessions.RegisterReading)
	s.GET("/:id/readings", sessions.Readings)
	s.GET("/:id/statistics", sessions.Statistics)

	rs := api.Group("/reading-sessions")
	rs.POST("", readings.Create)
	rs.GET("/active", readings.Active)
	rs.POST("/active/readings", readings.RecordReading)
	rs.GET("/:id", readings.Get)
	rs.GET("/:id/readings", readings.Readings)
	rs.POST("/:id/complete", readings.Complete)
	rs.POST("/:id/cancel", readings.Cancel)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
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
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_id", c.GetHeader(handlers.HeaderUserID)))
	}
}
