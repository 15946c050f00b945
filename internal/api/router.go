package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"qr-mac-backend/config"
	"qr-mac-backend/internal/assetcache"
	"qr-mac-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. Static assets are
// served through offline when it is non-nil.
func NewRouter(h *Handler, cfg config.ServerConfig, offline *assetcache.Worker) *gin.Engine {
	r := gin.Default()

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Cache-Control"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if cfg.Gzip {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedExtensions([]string{".png", ".jpg"})))
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/codes", h.ListCodes)
		api.POST("/codes", h.AddCode)
		api.POST("/codes/reload", h.ReloadCodes)
		api.DELETE("/codes/:index", h.RemoveCode)

		api.GET("/scan", h.GetScan)
		api.POST("/scan/toggle", h.ToggleScan)
		api.GET("/scan/preview.jpg", h.GetPreview)

		api.GET("/cart", h.GetCart)
		api.POST("/cart/open", h.OpenCart)
		api.POST("/cart/close", h.CloseCart)
		api.GET("/cart/:image", h.GetCartImage)

		api.GET("/notices", h.GetNotices)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	static := []gin.HandlerFunc{apiNotFound}
	if offline != nil {
		static = append(static, mw.Offline(offline))
	}
	static = append(static, func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.NoRoute(static...)

	return r
}

func apiNotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Next()
}
