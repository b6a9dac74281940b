package webhook

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proyuen/invsync/internal/middleware"
	"github.com/proyuen/invsync/internal/service"
	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/hasher"
	"github.com/proyuen/invsync/pkg/token"
)

// AdminHandler exposes the manual mapping-refresh trigger and a read-only
// stock lookup: a deliberately thin surface, not a full admin UI.
type AdminHandler struct {
	mapping    service.MappingService
	stock      service.InventoryService
	settings   *config.Settings
	hasher     hasher.PasswordHasher
	tokenMaker token.Maker
}

// NewAdminHandler creates a new AdminHandler. tokenMaker may be nil when no
// jwt_secret is configured, in which case Login always reports unconfigured.
func NewAdminHandler(mapping service.MappingService, stock service.InventoryService, settings *config.Settings, hasher hasher.PasswordHasher, tokenMaker token.Maker) *AdminHandler {
	return &AdminHandler{mapping: mapping, stock: stock, settings: settings, hasher: hasher, tokenMaker: tokenMaker}
}

// RegisterRoutes mounts the admin endpoints behind AdminAuth, plus the
// unauthenticated login endpoint that exchanges a password for a JWT.
func (h *AdminHandler) RegisterRoutes(router gin.IRouter, adminCfg config.AdminConfig, tokenMaker token.Maker) {
	router.POST("/admin/login", func(c *gin.Context) { h.Login(c, adminCfg) })

	group := router.Group("/admin", middleware.AdminAuth(adminCfg, tokenMaker))
	group.POST("/sites/:site_id/refresh", h.RefreshMappings)
	group.GET("/stock/:sku", h.GetStock)
}

type adminLoginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies username/password against the configured admin credential
// and, on success, issues a short-lived JWT for use against the other admin
// endpoints, an alternative to operators hand-carrying the static bearer
// token from config. Requires jwt_secret, username, and password_hash all
// configured; any one missing disables this endpoint (501). AdminAuth
// accepts the static bearer token only when jwt_secret is unset; with
// jwt_secret set it accepts JWTs only.
func (h *AdminHandler) Login(c *gin.Context, adminCfg config.AdminConfig) {
	if h.tokenMaker == nil || adminCfg.Username == "" || adminCfg.PasswordHash == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "admin login is not configured"})
		return
	}

	var req adminLoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	if req.Username != adminCfg.Username {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := h.hasher.Check(req.Password, adminCfg.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	ttl := time.Duration(adminCfg.TokenTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	accessToken, payload, err := h.tokenMaker.CreateToken(0, req.Username, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_at":   payload.ExpiredAt,
	})
}

// RefreshMappings walks the given site's catalog and upserts its mappings.
func (h *AdminHandler) RefreshMappings(c *gin.Context) {
	siteID := c.Param("site_id")
	site, ok := h.settings.SiteByID(siteID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown site_id"})
		return
	}

	result, err := h.mapping.RefreshSiteMappings(c.Request.Context(), site)
	if err != nil {
		if err == service.ErrRefreshInProgress {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mapping refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site_id": result.SiteID,
		"mapped":  result.Mapped,
		"errors":  result.Errors,
	})
}

// GetStock returns the current on_hand for a SKU.
func (h *AdminHandler) GetStock(c *gin.Context) {
	sku := c.Param("sku")
	onHand, err := h.stock.GetStock(c.Request.Context(), sku)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stock"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sku": sku, "on_hand": onHand})
}
