// Package router assembles the gin engine from the webhook and admin
// handlers, keeping route registration out of main.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proyuen/invsync/internal/webhook"
	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/token"
)

// Router struct holds dependencies for routing.
type Router struct {
	webhookHandler *webhook.Handler
	adminHandler   *webhook.AdminHandler
	webhookCfg     config.WebhookConfig
	adminCfg       config.AdminConfig
	tokenMaker     token.Maker
}

// NewRouter creates a new Router instance.
func NewRouter(webhookHandler *webhook.Handler, adminHandler *webhook.AdminHandler, webhookCfg config.WebhookConfig, adminCfg config.AdminConfig, tokenMaker token.Maker) *Router {
	return &Router{
		webhookHandler: webhookHandler,
		adminHandler:   adminHandler,
		webhookCfg:     webhookCfg,
		adminCfg:       adminCfg,
		tokenMaker:     tokenMaker,
	}
}

// InitRoutes initializes all application routes.
func (r *Router) InitRoutes() *gin.Engine {
	engine := gin.Default()

	// Metrics endpoint
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.webhookHandler.RegisterRoutes(engine, r.webhookCfg)
	r.adminHandler.RegisterRoutes(engine, r.adminCfg, r.tokenMaker)

	return engine
}
