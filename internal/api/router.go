package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/storefront/identity-api/internal/api/handler"
	"github.com/storefront/identity-api/internal/api/middleware"
	"github.com/storefront/identity-api/internal/core/domain"
	"github.com/storefront/identity-api/internal/core/ports"
	"github.com/storefront/identity-api/internal/core/service"
	"github.com/storefront/identity-api/internal/infrastructure/config"
)

// NewRouter builds and returns the Echo instance with all routes registered.
// A missing signing secret fails construction: that is a startup fault, not
// something to discover on the first login.
func NewRouter(
	db *mongo.Database,
	rdb *redis.Client,
	store ports.CredentialStore,
	notifier ports.Notifier,
	cfg *config.Config,
	log zerolog.Logger,
) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("identity"))

	// --- Dependencies ---
	issuer, err := service.NewTokenIssuer(service.TokenConfig{
		Secret:     cfg.Token.Secret,
		Issuer:     cfg.Token.Issuer,
		Audience:   cfg.Token.Audience,
		ExpiryDays: cfg.Token.ExpiryDays,
	})
	if err != nil {
		return nil, err
	}
	identityService := service.NewIdentityService(store, notifier, cfg.SMTP.From, log)
	account := handler.NewAccountHandler(identityService, issuer)
	authRequired := middleware.Auth(cfg.Token.Secret)

	// --- Account routes ---
	g := e.Group("/account")
	g.POST("/register", account.Register)
	g.POST("/login", account.Login)
	g.GET("/check-email", account.CheckEmail)
	g.POST("/forgot-password", account.ForgotPassword)
	g.POST("/reset-password", account.ResetPassword)
	g.POST("/confirm-email", account.ConfirmEmail)

	g.GET("/current-user", account.CurrentUser, authRequired)
	g.POST("/change-password", account.ChangePassword, authRequired)
	g.GET("/resend-confirmation-email", account.ResendConfirmationEmail, authRequired)
	g.POST("/assign-role", account.AssignRole, authRequired, middleware.RBAC(domain.RoleAdmin))

	// --- Health probes + metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return e, nil
}
