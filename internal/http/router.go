package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bandafrc/api/internal/agenda"
	"github.com/bandafrc/api/internal/auth"
	"github.com/bandafrc/api/internal/config"
	"github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/metrics"
	"github.com/bandafrc/api/internal/repertorio"
)

// RouterDeps agrupa tudo o que o router precisa já construído.
type RouterDeps struct {
	Config     *config.Config
	JWT        *auth.JWTManager
	Auth       *AuthHandler
	Perfil     *PerfilHandler
	Agenda     *agenda.Handler
	Repertorio *repertorio.Handler
	DB         *pgxpool.Pool
	Redis      *redis.Client
}

// NewRouter monta o mux com grupos público e autenticado.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recover)
	r.Use(middleware.CORS(deps.Config.AllowOrigins))
	r.Use(metrics.Middleware())

	publicLimiter := middleware.NewRateLimiter(
		deps.Config.RateLimitPublic.RequestsPerSecond,
		deps.Config.RateLimitPublic.Burst,
	)
	authLimiter := middleware.NewRateLimiter(
		deps.Config.RateLimitAuth.RequestsPerSecond,
		deps.Config.RateLimitAuth.Burst,
	)

	r.Group(func(pub chi.Router) {
		pub.Use(middleware.IPRateLimit(publicLimiter))

		pub.Get("/health", handleHealth)
		pub.Get("/ready", handleReady(deps.DB, deps.Redis))
		pub.Handle("/metrics", metrics.Handler())

		pub.Route("/auth", func(ar chi.Router) {
			ar.Post("/signup", deps.Auth.HandleSignup)
			ar.Post("/login", deps.Auth.HandleLogin)
			ar.Post("/refresh", deps.Auth.HandleRefresh)
			ar.Post("/logout", deps.Auth.HandleLogout)
		})
	})

	r.Group(func(priv chi.Router) {
		priv.Use(middleware.Auth(deps.JWT))
		priv.Use(middleware.UserRateLimit(authLimiter))

		priv.Get("/me", deps.Auth.HandleMe)
		priv.Get("/membros", deps.Perfil.HandleListMembros)

		priv.Route("/perfil", func(pr chi.Router) {
			pr.Get("/", deps.Perfil.HandleGet)
			pr.Put("/", deps.Perfil.HandleUpdate)
			pr.Put("/avatar", deps.Perfil.HandleAvatar)
		})

		deps.Agenda.RegisterRoutes(priv)
		deps.Repertorio.RegisterRoutes(priv)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady confirma Postgres e Redis antes de aceitar tráfego.
func handleReady(db *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "banco indisponível", nil)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "redis indisponível", nil)
				return
			}
		}

		WriteJSON(w, http.StatusOK, map[string]string{"status": "pronto"})
	}
}
