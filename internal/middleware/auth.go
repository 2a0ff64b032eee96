// Package middleware holds the gin middleware shared by the API routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// AdminRole is the role claim an operator token must carry.
const AdminRole = "admin"

// ContextSubject is the gin context key holding the authenticated operator.
const ContextSubject = "admin_subject"

// AdminAuth requires an HS256 bearer token signed with secret and carrying role=admin.
// An empty secret rejects every request.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "msg": "admin access is not configured"})
			return
		}
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "msg": "missing bearer token"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			log.WithFields(log.Fields{
				"path":  c.FullPath(),
				"error": err,
			}).Warn("rejected admin token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "msg": "invalid token"})
			return
		}
		if role, _ := claims["role"].(string); role != AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "msg": "admin role required"})
			return
		}

		sub, _ := claims.GetSubject()
		c.Set(ContextSubject, sub)
		c.Next()
	}
}
