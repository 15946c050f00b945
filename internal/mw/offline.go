package mw

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qr-mac-backend/internal/assetcache"
)

// Offline serves static assets through the offline cache: cached responses
// first, then the cache's origin.
func Offline(worker *assetcache.Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := worker.Fetch(c.Request.Context(), c.Request)
		if errors.Is(err, assetcache.ErrNotIntercepted) {
			c.Next()
			return
		}
		if err != nil {
			log.Printf("Offline fetch of %s failed: %v", c.Request.URL.Path, err)
			c.AbortWithStatus(http.StatusBadGateway)
			return
		}

		for k, v := range resp.Header {
			c.Writer.Header()[k] = v
		}
		c.Writer.WriteHeader(resp.Status)
		_, _ = c.Writer.Write(resp.Body)
		c.Abort()
	}
}
