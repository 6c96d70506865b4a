package rest

import (
	"net/http"

	"github.com/friendhub/server/account"
	"github.com/friendhub/server/api/response"
	"github.com/friendhub/server/cache"
	"github.com/friendhub/server/config"
	"github.com/friendhub/server/metrics"
	mw "github.com/friendhub/server/middleware"
	"github.com/friendhub/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs. Metrics and Tracing are optional.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Cache    cache.Cache
	Logger   *zap.Logger
	Accounts *account.Service
	Social   *social.Service
	Metrics  *metrics.Metrics
	Tracing  gin.HandlerFunc
}

// NewRouter builds the gin engine with the full middleware chain and every
// route mounted under the configured base URL. The returned Guard is the one
// protecting the API group.
func NewRouter(d Deps) (*gin.Engine, *mw.Guard) {
	cfg := d.Config
	base := cfg.Server.BaseURL

	r := gin.New()
	r.Use(mw.TraceID())
	if d.Tracing != nil {
		r.Use(d.Tracing)
	}
	var panics mw.PanicObserver
	if d.Metrics != nil {
		panics = d.Metrics
	}
	r.Use(mw.Logger(d.Logger), mw.Recovery(d.Logger, panics), mw.CORS(cfg.Security.AllowedOrigins))
	if d.Metrics != nil {
		r.Use(mw.Metrics(d.Metrics))
	}
	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "")
	})
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	if d.Metrics != nil && cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, mw.IPWhitelist(cfg.Metrics.AllowedIPs, d.Logger), gin.WrapH(d.Metrics.Handler()))
	}

	guard := mw.NewGuard(cfg.Security, base, d.Cache, d.Logger)
	guard.OnActivity(d.Accounts)

	authH := NewAuthHandler(d.Accounts, guard, d.Logger)
	userH := NewUserHandler(d.DB, d.Logger)
	friendH := NewFriendshipHandler(d.Social, d.Logger)
	healthH := NewHealthHandler(d.DB, d.Logger)

	api := r.Group(base)
	api.Use(guard.Handler())
	{
		api.GET("/health", healthH.Check)

		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/register", authH.Register)
		authG.POST("/logout", authH.Logout)

		usersG := api.Group("/users")
		usersG.GET("/me", userH.Me)
		usersG.GET("/all", userH.GetAll)
		usersG.GET("/search", userH.Search)
		usersG.GET("/friends", friendH.Friends)
		usersG.GET("/friend-requests", friendH.Requests)
		usersG.POST("/add-friend", friendH.Add)
		usersG.POST("/handle-friend-request", friendH.Handle)
		usersG.DELETE("/friends/:id", friendH.Delete)
		usersG.GET("/:id", userH.GetByID)

		// Directory lookups work anonymously; a token, when sent, still
		// identifies the caller.
		guard.Public(base + "/users/all")
		guard.Public(base + "/users/search")
		guard.Public(base + "/users/:id")
	}
	return r, guard
}
