// Package middleware provides the gin middleware shared by every route.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows any origin to read and write content. Preflight and
// other OPTIONS requests are answered with 200 and no body.
func CORSMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Cache-Control",
			"X-Requested-With", RequestIDHeader,
		},
		ExposeHeaders:   []string{"Content-Type", RequestIDHeader},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	handler := cors.New(config)

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions {
			handler(c)
			return
		}
		c.Writer = preflightWriter{c.Writer}
		handler(c)
		if !c.IsAborted() {
			c.AbortWithStatus(http.StatusOK)
		}
	}
}

// preflightWriter reports the cors package's 204 preflight answer as 200.
type preflightWriter struct {
	gin.ResponseWriter
}

func (w preflightWriter) WriteHeader(code int) {
	if code == http.StatusNoContent {
		code = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(code)
}
