package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/koyomi-dev/koyomi/internal/auth"
	"github.com/koyomi-dev/koyomi/internal/config"
	"github.com/koyomi-dev/koyomi/internal/gcal"
	"github.com/koyomi-dev/koyomi/internal/server/db"
	"github.com/koyomi-dev/koyomi/internal/server/handler"
	"github.com/koyomi-dev/koyomi/internal/tasks"
	"github.com/koyomi-dev/koyomi/internal/version"
)

// Deps bundles what the HTTP surface needs; assembled once in main.
type Deps struct {
	Config   *config.Config
	Store    *db.Store
	Issuer   *auth.TokenIssuer
	Verifier handler.IDTokenVerifier
	Gateway  *gcal.Gateway
	Tasks    tasks.Enqueuer
}

// NewRouter assembles the Gin engine with all routes and middleware.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(CORS(d.Config.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})

	v1 := r.Group("/v1")

	// Login and refresh are unauthenticated; each carries its own proof
	// (a Google id_token, a refresh token).
	v1.POST("/auth/google", handler.HandleGoogleLogin(d.Store, d.Issuer, d.Verifier, d.Config))
	v1.POST("/auth/refresh", handler.HandleRefresh(d.Store, d.Issuer))

	authed := v1.Group("")
	authed.Use(AuthRequired(d.Issuer))
	authed.POST("/auth/logout", handler.HandleLogout(d.Store, d.Issuer))
	authed.POST("/auth/google/save-token", handler.HandleSaveGoogleToken(d.Store, d.Config))
	authed.GET("/auth/account", handler.HandleAccount(d.Store))
	authed.GET("/auth/google/test", handler.HandleGmailTest(d.Gateway))

	authed.POST("/events", handler.HandleCreateEvent(d.Store, d.Tasks))
	authed.GET("/events", handler.HandleListEvents(d.Store))
	authed.GET("/events/:id", handler.HandleGetEvent(d.Store))
	authed.PUT("/events/:id", handler.HandleUpdateEvent(d.Store, d.Tasks))
	authed.DELETE("/events/:id", handler.HandleDeleteEvent(d.Store, d.Tasks))

	authed.POST("/mail", handler.HandleSendMail(d.Tasks))

	return r
}
