package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/notify-relay/internal/application/dispatch"
	"github.com/notify-relay/internal/application/notification"
	"github.com/notify-relay/internal/application/push"
	"github.com/notify-relay/internal/config"
	jwtinfra "github.com/notify-relay/internal/infrastructure/jwt"
	"github.com/notify-relay/internal/transport/http/handler"
	appmiddleware "github.com/notify-relay/internal/transport/http/middleware"
	"github.com/notify-relay/internal/transport/ws"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	SubscriptionRepo SubscriptionRepository
	NotificationRepo NotificationRepository
	PushKeys         PushKeys
	Notifier         *dispatch.Notifier
	Registry         *ws.Registry
	JWTProvider      *jwtinfra.Provider
	Logger           *slog.Logger
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, on subscription writes.
	subscribeRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	pushSvc := push.NewService(deps.SubscriptionRepo, deps.PushKeys)
	notifSvc := notification.NewService(deps.NotificationRepo, deps.Notifier, deps.Logger)

	healthH := handler.NewHealthHandler(deps.Registry.Len)
	pushH := handler.NewPushHandler(pushSvc, notifSvc)
	notifH := handler.NewNotificationHandler(notifSvc)
	liveH := ws.NewHandler(deps.Registry, ws.HandlerOptions{
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		SendBuffer:       cfg.WSSendBuffer,
		AllowedOrigins:   cfg.AllowedOrigins,
		Identity:         appmiddleware.UserID,
		Logger:           deps.Logger,
	})

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.Get("/test", healthH.Test)
		r.Get("/push/public-key", pushH.PublicKey)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Method(http.MethodGet, "/ws", liveH)

			r.With(subscribeRL.Limit).Post("/push/subscribe", pushH.Subscribe)
			r.With(subscribeRL.Limit).Delete("/push/subscribe", pushH.Unsubscribe)
			r.Get("/push/subscriptions", pushH.List)
			r.With(subscribeRL.Limit).Post("/push/test", pushH.Test)

			r.Get("/notifications", notifH.ListUnread)
			r.Get("/notifications/count", notifH.CountUnread)
			r.Put("/notifications/{id}", notifH.MarkAsRead)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(appmiddleware.RoleAdmin))

				r.Post("/users/{id}/notifications", notifH.CreateForUser)
			})
		})
	})

	return r
}
