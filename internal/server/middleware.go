package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderInternalToken = "x-internal-token"

// InternalTokenRequired rejects requests whose x-internal-token header does
// not match the configured token. With no token configured every request
// passes.
func (s *Server) InternalTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.InternalAPIToken)
		if expected == "" {
			c.Next()
			return
		}

		got := strings.TrimSpace(c.GetHeader(HeaderInternalToken))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}
