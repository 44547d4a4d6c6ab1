package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore disables intermediary and browser caching. Attempt state and
// remaining-time responses are stale the moment they leave the server;
// a cached copy would resurrect answers from an old attempt on reload.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
