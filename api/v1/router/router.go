package router

import (
	"net/http"
	"time"

	"github.com/GHutch55/fastzero/api/v1/handlers"
	"github.com/GHutch55/fastzero/api/v1/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"
)

// Store is everything the routes need from persistence
type Store interface {
	handlers.UserStore
	handlers.Pinger
}

type Options struct {
	Store              Store
	JWTSecret          string
	TokenTTL           time.Duration
	CORSAllowedOrigins []string
	TokenRateLimit     int // per remote address per minute
	Log                logrus.FieldLogger

	// HashCost overrides the bcrypt cost when non-zero
	HashCost int
}

func New(opts Options) http.Handler {
	validate := handlers.NewValidator()
	authMiddleware := middleware.NewAuthMiddleware(opts.Store, opts.JWTSecret, opts.TokenTTL, opts.Log)

	userHandler := handlers.NewUserHandler(opts.Store, validate, opts.Log)
	if opts.HashCost != 0 {
		userHandler.HashCost = opts.HashCost
	}
	authHandler := handlers.NewAuthHandler(opts.Store, authMiddleware, validate, opts.Log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(opts.Log))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", handlers.HomeHandler)
	r.Get("/ola", handlers.OlaHandler)
	r.Get("/health", handlers.HealthHandler(opts.Store, opts.Log))
	r.Get("/api", handlers.ApiInfoHandler)
	r.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	r.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.CreateUser)
		r.Get("/", userHandler.GetUsers)
		r.Get("/{id}", userHandler.GetUser)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Put("/{id}", userHandler.UpdateUser)
			r.Delete("/{id}", userHandler.DeleteUser)
		})
	})

	// keyed on RemoteAddr; forwarded headers are client controlled
	r.With(httprate.LimitByIP(opts.TokenRateLimit, time.Minute)).Post("/token", authHandler.IssueToken)
	r.With(authMiddleware.RequireAuth).Post("/auth/refresh_token", authHandler.RefreshToken)

	return r
}
