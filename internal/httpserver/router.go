package httpserver

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intellinbox/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	inboxHandler *handler.InboxHandler,
	emailHandler *handler.EmailHandler,
	db *pgxpool.Pool,
) *Router {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	inboxes := r.Group("/inboxes")
	{
		inboxes.POST("", inboxHandler.Create)
		inboxes.GET("", inboxHandler.List)
		inboxes.POST("/syncall", inboxHandler.SyncAll)
		inboxes.POST("/:id/sync", inboxHandler.TriggerSync)
		inboxes.POST("/:id/reset", inboxHandler.Reset)
		inboxes.PATCH("/:id/status", inboxHandler.UpdateStatus)
		inboxes.DELETE("/:id", inboxHandler.Delete)
	}

	emails := r.Group("/emails")
	{
		emails.GET("", emailHandler.List)
		emails.GET("/:id", emailHandler.Get)
		emails.POST("", emailHandler.Create)
		emails.PATCH("/:id/analysis", emailHandler.Reanalyze)
		emails.DELETE("/:id", emailHandler.Delete)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return r.Engine.Run(port)
}
