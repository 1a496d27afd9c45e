// Package broker предоставляет маршруты основного процесса.
package broker

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/credadd"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/crededit"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/credlist"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/free"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/grant"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/inspect"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/admin/revoke"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/cancel"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/choose"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/confirm"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/details"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/screenshot"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/conversation/start"
	"github.com/magabrotheeeer/credential-broker/internal/http/handlers/health"
	"github.com/magabrotheeeer/credential-broker/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credential-broker/internal/lib/jwt"
	adminservice "github.com/magabrotheeeer/credential-broker/internal/services/admin"
	authservice "github.com/magabrotheeeer/credential-broker/internal/services/auth"
	conversationservice "github.com/magabrotheeeer/credential-broker/internal/services/conversation"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	authService *authservice.AuthService,
	conversationService *conversationservice.Service,
	adminService *adminservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/login", login.New(logger, authService).ServeHTTP)

		// Диалог покупки. Идентификация пользователя приходит от
		// чат-транспорта, поэтому группа защищена только лимитом частоты.
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/conversation/start", start.New(logger, conversationService).ServeHTTP)
			r.Post("/conversation/choose", choose.New(logger, conversationService).ServeHTTP)
			r.Post("/conversation/confirm", confirm.New(logger, conversationService).ServeHTTP)
			r.Post("/conversation/cancel", cancel.New(logger, conversationService).ServeHTTP)
			r.Post("/conversation/screenshot", screenshot.New(logger, conversationService).ServeHTTP)
			r.Get("/conversation/details/{user_id}", details.New(logger, conversationService).ServeHTTP)
		})

		// Группа оператора с JWT аутентификацией
		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Post("/grant", grant.New(logger, adminService).ServeHTTP)
			r.Post("/revoke", revoke.New(logger, adminService).ServeHTTP)
			r.Post("/free", free.New(logger, adminService).ServeHTTP)
			r.Post("/credentials", credadd.New(logger, adminService).ServeHTTP)
			r.Put("/credentials/{username}", crededit.New(logger, adminService).ServeHTTP)
			r.Get("/credentials", credlist.New(logger, adminService).ServeHTTP)
			r.Get("/users/{user_id}", inspect.New(logger, adminService).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
