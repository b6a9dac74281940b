package middleware

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/token"
)

// AdminAuth gates the manual mapping-refresh trigger. When cfg.JWTSecret is
// set, a bearer token is verified as a JWT via tokenMaker; otherwise a
// static pre-shared bearer token is compared in constant time. With
// JWTSecret set, the static token is not accepted. This is a thin scaffold,
// not a full admin identity system: the only login flow is
// AdminHandler.Login, which checks one configured username/password pair
// and issues a JWT.
func AdminAuth(cfg config.AdminConfig, tokenMaker token.Maker) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))

		if cfg.JWTSecret != "" && tokenMaker != nil {
			if _, err := tokenMaker.VerifyToken(token); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
				return
			}
			c.Next()
			return
		}

		if cfg.BearerToken != "" && hmac.Equal([]byte(token), []byte(cfg.BearerToken)) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
	}
}
