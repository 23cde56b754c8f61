package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"locker-kiosk-backend/internal/mw"
)

// RouterConfig carries the transport-level tunables for NewRouter.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	AllowedOrigins  []string
}

// NewRouter creates and configures a new gin router. Endpoint paths are
// part of the kiosk front end's contract and must not change.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.Metrics())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE"}
	r.Use(cors.New(corsCfg))

	r.Use(mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst))

	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/submissions", h.PostSubmission)
	r.GET("/submissions", h.GetSubmissions)
	r.PUT("/submissions/:id/receive", h.ReceiveSubmission)

	r.POST("/retrieve", h.PostRetrieve)

	r.GET("/lockers", caching, h.GetLockers)
	r.POST("/lockers", h.PostLocker)
	r.PUT("/lockers/:id", h.PutLocker)
	r.DELETE("/lockers/:id", h.DeleteLocker)

	r.GET("/devices", caching, h.GetDevices)
	r.POST("/devices/detections", h.PostDetection)

	r.POST("/actuate", h.PostActuate)

	r.PUT("/subscriptions", h.PutSubscription)
	r.DELETE("/subscriptions", h.DeleteSubscription)
	r.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	r.POST("/admin/credentials", h.PostAdminBootstrap)
	r.POST("/admin/credentials/propose", h.PostAdminPropose)
	r.POST("/admin/credentials/verify", h.PostAdminVerify)

	return r
}
