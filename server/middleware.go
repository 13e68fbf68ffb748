package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mizuhq/konichiwa/auth"
)

const identityKey = "identity"

// bearerToken extracts the session token from the Authorization header,
// falling back to the token query parameter (used by WebSocket clients,
// which cannot set headers from the browser).
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

// requireAuth resolves the bearer token to an identity or aborts with 401.
func (s *Server) requireAuth(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session token"})
		return
	}

	identity, err := s.authn.Current(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, err)
		c.Abort()
		return
	}

	c.Set(identityKey, identity)
	c.Next()
}

func identityFrom(c *gin.Context) auth.Identity {
	identity, _ := c.Get(identityKey)
	id, _ := identity.(auth.Identity)
	return id
}
