package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS mirrors the wildcard-origin, GET+OPTIONS, all-headers policy: every
// response gets the three Access-Control-Allow-* headers, and a bare
// OPTIONS preflight is answered with 200 before reaching any handler.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
