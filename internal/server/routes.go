package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opensyncbox/syncbox/internal/server/accesslog"
	authHandlers "github.com/opensyncbox/syncbox/internal/server/handlers/auth"
	"github.com/opensyncbox/syncbox/internal/server/middlewares"
	"github.com/opensyncbox/syncbox/internal/version"
)

// SetupRoutes wires the sync server's HTTP surface: unauthenticated health
// and auth endpoints, and the JWT-guarded /sync/* endpoints internal/syncsdk
// speaks against.
func SetupRoutes(cfg *Config, svc *Services) http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.Logger())
	r.Use(middlewares.CORS())
	r.Use(middlewares.GZIP())
	if cfg.HTTP.HTTPSEnabled() {
		r.Use(middlewares.HSTS())
	}
	r.Use(accesslog.NewMiddleware(svc.AccessLog).Handler())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	authH := authHandlers.New(svc.Auth)
	authG := r.Group("/auth")
	authG.Use(middlewares.RateLimiter("10-M")) // 10 req/min
	{
		authG.POST("/request_email_token", authH.RequestToken)
		authG.POST("/validate_email_token", authH.ValidateToken)
		authG.POST("/refresh", authH.Refresh)
	}

	syncG := r.Group("/sync")
	syncG.Use(middlewares.JWTAuth(svc.Auth))
	{
		syncG.POST("/get_metadata", svc.Sync.GetMetadata)
		syncG.POST("/get_diff", svc.Sync.GetDiff)
		syncG.POST("/apply_diff", svc.Sync.ApplyDiff)
		syncG.POST("/create", svc.Sync.Create)
		syncG.POST("/delete", svc.Sync.Delete)
		syncG.GET("/download/*path", svc.Sync.Download)
		syncG.POST("/download_bulk", svc.Sync.DownloadBulk)
		syncG.GET("/datasite_states", svc.Sync.DatasiteStates)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "E_INVALID_REQUEST", "error": "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": "E_INVALID_REQUEST", "error": "method not allowed"})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
