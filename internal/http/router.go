package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voice-match/internal/metrics"
	"voice-match/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
// Con jwtSvc habilitado, /intake y /matches exigen access token.
func NewRouter(
	logger *zap.Logger,
	collector *metrics.Collector,
	jwtSvc *service.JWTService,
	intakeH *IntakeHandler,
	matchH *MatchHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if collector != nil {
		r.GET("/metrics", gin.WrapH(collector.Handler()))
	}

	api := r.Group("")
	if jwtSvc.Enabled() {
		api.Use(JWTAuthMiddleware(jwtSvc))
	}

	intake := api.Group("/intake")
	intake.GET("/questions", intakeH.ListQuestions)
	intake.POST("/sessions", intakeH.BeginSession)
	intake.GET("/sessions/:id", intakeH.GetSession)
	intake.GET("/sessions/:id/question", intakeH.CurrentQuestion)
	intake.POST("/sessions/:id/recording", intakeH.StartRecording)
	intake.POST("/sessions/:id/responses", intakeH.CaptureResponse)
	intake.POST("/sessions/:id/advance", intakeH.Advance)
	intake.POST("/sessions/:id/retreat", intakeH.Retreat)
	intake.POST("/sessions/:id/finalize", intakeH.Finalize)

	api.POST("/matches", matchH.Rank)
	api.GET("/matches", matchH.ListMatches)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
// /metrics queda afuera porque expone el formato de texto de Prometheus.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path != "/metrics" {
			c.Writer.Header().Set("Content-Type", "application/json")
		}
		c.Next()
	}
}
