package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/handler"
	"github.com/stemsi/tricol-console/internal/middleware"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	AdminUser     *handler.AdminUserHandler
	Screen        *handler.ScreenHandler
	SessionStream *handler.SessionStreamHandler
	Proxy         *handler.ProxyHandler
}

// Screens is the console's navigation table. A screen without a
// requirement is open to any signed-in operator.
func Screens() []handler.Screen {
	return []handler.Screen{
		{
			Path:  middleware.LandingPath,
			Title: "Dashboard",
		},
		{
			Path:        "/suppliers",
			Title:       "Suppliers",
			Requirement: permission.AnyPermission(model.PermissionSuppliersRead),
			Actions: map[string][]model.Permission{
				"write": {model.PermissionSuppliersWrite},
			},
		},
		{
			Path:        "/products",
			Title:       "Products",
			Requirement: permission.AnyPermission(model.PermissionProductsRead),
			Actions: map[string][]model.Permission{
				"write":  {model.PermissionProductsWrite},
				"alerts": {model.PermissionProductsConfigureAlerts},
			},
		},
		{
			Path:        "/orders",
			Title:       "Supplier orders",
			Requirement: permission.AnyPermission(model.PermissionOrdersRead),
			Actions: map[string][]model.Permission{
				"write":    {model.PermissionOrdersWrite},
				"validate": {model.PermissionOrdersValidate},
				"cancel":   {model.PermissionOrdersCancel},
				"receive":  {model.PermissionOrdersReceive},
			},
		},
		{
			Path:        "/stock",
			Title:       "Stock",
			Requirement: permission.AnyPermission(model.PermissionStockRead),
			Actions: map[string][]model.Permission{
				"valuation": {model.PermissionStockValuation},
				"history":   {model.PermissionStockHistory},
			},
		},
		{
			Path:        "/exit-slips",
			Title:       "Exit slips",
			Requirement: permission.AnyPermission(model.PermissionExitSlipsRead),
			Actions: map[string][]model.Permission{
				"create":   {model.PermissionExitSlipsCreate},
				"validate": {model.PermissionExitSlipsValidate},
				"cancel":   {model.PermissionExitSlipsCancel},
			},
		},
		{
			Path:        "/admin/users",
			Title:       "User management",
			Requirement: permission.AnyPermission(model.PermissionAdminUsers),
		},
	}
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.SessionReader,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Location", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.AccessLog(log))
	router.Use(gin.Recovery())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 0. Public screens ─────────────────────────────────────────────
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, middleware.LandingPath)
	})
	router.GET(middleware.LoginPath, handlers.Screen.Login)
	router.GET("/register", handlers.Screen.Register)

	// ─── 1. Console auth API (no session required) ─────────────────────
	loginLimiter := middleware.NewRateLimiter(cfg.LoginRatePerMinute, time.Minute)

	authAPI := router.Group("/api/auth")
	authAPI.Use(middleware.NoStore())
	{
		authAPI.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		authAPI.POST("/register", loginLimiter.Middleware(), handlers.Auth.Register)
		authAPI.POST("/logout", handlers.Auth.Logout)
		authAPI.POST("/refresh", handlers.Auth.Refresh)
	}
	router.GET("/api/session", middleware.NoStore(), handlers.Auth.Session)

	// The stream reports the signed-out state too, so it is not guarded.
	router.GET("/ws/session", handlers.SessionStream.Stream)

	// ─── 2. Screens (session + requirement) ────────────────────────────
	screens := router.Group("")
	screens.Use(middleware.RequireSession(auth), middleware.NoStore())
	for _, s := range Screens() {
		screens.GET(s.Path, middleware.Require(s.Requirement), handlers.Screen.Render(s))
	}

	// ─── 3. Admin API (session + ADMIN_USERS) ──────────────────────────
	adminAPI := router.Group("/api/admin")
	adminAPI.Use(
		middleware.RequireSession(auth),
		middleware.RequirePermission(model.PermissionAdminUsers),
	)
	{
		adminAPI.GET("/permissions", middleware.CacheControl(300), handlers.AdminUser.Catalog)

		users := adminAPI.Group("/users")
		users.Use(middleware.NoStore())
		{
			users.GET("", handlers.AdminUser.ListUsers)
			users.GET("/:id", handlers.AdminUser.GetUser)
			users.PUT("/:id/permissions", handlers.AdminUser.SavePermissions)
			users.POST("/:id/permissions/:permission", handlers.AdminUser.GrantPermission)
			users.DELETE("/:id/permissions/:permission", handlers.AdminUser.RevokePermission)
			users.POST("/:id/role", handlers.AdminUser.AssignRole)
		}
	}

	// ─── 4. Backend resources through the credential interceptor ───────
	backend := router.Group(handler.ProxyPrefix)
	backend.Use(middleware.RequireSession(auth))
	{
		backend.Any("/*path", handlers.Proxy.Forward)
	}

	router.NoRoute(handlers.Screen.Fallback)

	return router
}
