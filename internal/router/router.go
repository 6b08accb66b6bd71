// Package router wires every HTTP/WebSocket endpoint spec §6 names onto
// an Echo instance, threading JWT auth, role checks, Redis-backed rate
// limiting and response caching the way the teacher's router does.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-reservation/internal/config"
	"github.com/iliyamo/cinema-seat-reservation/internal/handler"
	"github.com/iliyamo/cinema-seat-reservation/internal/middleware"
	"github.com/iliyamo/cinema-seat-reservation/internal/payment"
)

// Handlers bundles every handler RegisterRoutes wires up, so main.go builds
// one struct instead of passing a long positional argument list.
type Handlers struct {
	Auth    *handler.AuthHandler
	Catalog *handler.CatalogHandler
	Payment *handler.PaymentHandler
	WS      *handler.WSHandler
	Payme   *payment.PaymeHandler
	Click   *payment.ClickHandler
}

// RegisterRoutes mounts every route. rdb may be nil (cache/rate-limit
// middleware then no-op, matching their constructors' degrade-gracefully
// contract).
func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	e.POST("/auth/register", h.Auth.Register)
	e.POST("/auth/login", h.Auth.Login)
	e.POST("/auth/refresh", h.Auth.Refresh)
	e.POST("/auth/refresh-access", h.Auth.RefreshAccess)
	e.POST("/auth/logout", h.Auth.Logout)

	authed := e.Group("", middleware.JWTAuth(cfg.JWTSecret))
	authed.GET("/auth/me", h.Auth.Me)

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	authed.GET("/sessions/:id/seats", h.Catalog.SeatLayout, cache)
	authed.GET("/me/bookings", h.Catalog.MyBookings)

	// The WebSocket upgrade handles its own auth (browsers can't set a
	// custom Authorization header on the handshake), so it stays outside
	// the JWTAuth-gated group and resolves the token itself.
	e.GET("/bookings", h.WS.Serve)

	authed.POST("/payments", h.Payment.Create)
	authed.GET("/payments", h.Payment.List)
	authed.GET("/payments/:id", h.Payment.Get)
	authed.POST("/payments/refund", h.Payment.Refund, middleware.RequireRole("OWNER"))
	authed.GET("/payments/:id/transactions", h.Payment.Transactions)

	e.POST("/payments/payme/callback", h.Payment.PaymeCallback(h.Payme),
		middleware.PaymeBasicAuth(cfg.PaymeMerchantLogin, cfg.PaymeMerchantKey))
	e.POST("/payments/click/prepare", h.Payment.ClickPrepare(h.Click))
	e.POST("/payments/click/complete", h.Payment.ClickComplete(h.Click))
}
