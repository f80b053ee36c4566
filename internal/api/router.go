package api

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	logx "newsbot/pkg/logx"
)

// NewRouter builds the gin engine. metrics may be nil.
func NewRouter(cfg Config, h *Handler, metrics http.Handler, log logx.Logger) *gin.Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	router := gin.New()
	router.Use(recoveryMiddleware(log))
	router.Use(loggerMiddleware(log))

	router.GET("/healthz", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	if cfg.Pprof.Enabled {
		mountPprof(router, cfg.Pprof, log)
	}

	api := router.Group("/api")

	schedules := api.Group("/schedules")
	schedules.GET("", h.ListSchedules)
	schedules.POST("", h.CreateSchedule)
	schedules.GET("/:id", h.GetSchedule)
	schedules.PATCH("/:id", h.UpdateSchedule)
	schedules.PUT("/:id", h.UpdateSchedule)
	schedules.DELETE("/:id", h.DeleteSchedule)
	schedules.POST("/:id/run", h.RunSchedule)

	api.GET("/settings", h.GetSettings)
	api.PUT("/settings", h.SaveSettings)

	articles := api.Group("/articles")
	articles.GET("", h.ListArticles)
	articles.POST("/fetch", h.FetchArticles)
	articles.PATCH("/:id", h.UpdateArticle)

	newsletters := api.Group("/newsletters")
	newsletters.GET("", h.ListNewsletters)
	newsletters.POST("/generate", h.GenerateNewsletter)
	newsletters.GET("/:id", h.GetNewsletter)
	newsletters.GET("/:id/approve", h.ApproveNewsletter)
	newsletters.GET("/:id/reject", h.RejectNewsletter)
	newsletters.POST("/:id/publish", h.PublishNewsletter)
	newsletters.POST("/:id/social", h.GenerateSocialPost)

	api.GET("/activity", h.ListActivity)
	api.GET("/scheduler", h.SchedulerSnapshot)

	return router
}

func loggerMiddleware(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)),
			logx.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logx.String("errors", c.Errors.String()))
			log.Warn("http request", fields...)
			return
		}
		if path == "/healthz" || path == "/metrics" {
			log.Trace("http request", fields...)
			return
		}
		log.Debug("http request", fields...)
	}
}

func recoveryMiddleware(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("http handler panic",
					logx.String("path", c.Request.URL.Path),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// bearerOrQueryToken guards a route group with a shared token. An empty
// token disables the check.
func bearerOrQueryToken(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		if got := c.Query("token"); got != "" && got == tok {
			c.Next()
			return
		}
		const p = "Bearer "
		if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
