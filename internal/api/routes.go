package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arjunyel/svix-webhooks/internal/api/handlers"
	apiMiddleware "github.com/arjunyel/svix-webhooks/internal/api/middleware"
	"github.com/arjunyel/svix-webhooks/internal/api/websocket"
	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

// Server represents the HTTP server
type Server struct {
	router          *chi.Mux
	store           *store.Store
	queue           *queue.RedisQueue
	dlq             *queue.DLQ
	config          *config.Config
	authHandler     *handlers.AuthHandler
	appHandler      *handlers.ApplicationHandler
	endpointHandler *handlers.EndpointHandler
	messageHandler  *handlers.MessageHandler
	adminHandler    *handlers.AdminHandler
	wsHub           *websocket.Hub
	wsHandler       *websocket.Handler
	publisher       *events.RedisPubSub
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, st *store.Store, q *queue.RedisQueue, dlq *queue.DLQ, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	s := &Server{
		router:          chi.NewRouter(),
		store:           st,
		queue:           q,
		dlq:             dlq,
		config:          cfg,
		authHandler:     handlers.NewAuthHandler(st, &cfg.Auth),
		appHandler:      handlers.NewApplicationHandler(st),
		endpointHandler: handlers.NewEndpointHandler(st, publisher),
		messageHandler:  handlers.NewMessageHandler(st, q, cfg.Dispatch.MaxQueueSize),
		adminHandler:    handlers.NewAdminHandler(q, dlq, publisher),
		wsHub:           wsHub,
		wsHandler:       websocket.NewHandler(wsHub),
		publisher:       publisher,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	apiKeys := make(map[string]bool, len(s.config.Auth.APIKeys))
	for _, key := range s.config.Auth.APIKeys {
		apiKeys[key] = true
	}
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   apiKeys,
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Content type for API routes
		r.Use(middleware.AllowContentType("application/json"))

		r.Use(apiMiddleware.Auth(authCfg, s.store))

		// Rate limiting runs after auth so dashboard tokens are
		// limited per application rather than per address
		if s.config.Dispatch.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Dispatch.RateLimitRPS))
		}

		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/dashboard-access/{appID}", s.authHandler.DashboardAccess)
			r.Post("/logout", s.authHandler.Logout)
		})

		// Application routes
		r.Route("/app", func(r chi.Router) {
			r.Post("/", s.appHandler.Create)
			r.Get("/", s.appHandler.List)

			r.Route("/{appID}", func(r chi.Router) {
				// Dashboard tokens only reach their own application
				r.Use(apiMiddleware.RequireApp(func(r *http.Request) string {
					return chi.URLParam(r, "appID")
				}))

				r.Get("/", s.appHandler.Get)
				r.Put("/", s.appHandler.Update)
				r.Delete("/", s.appHandler.Delete)

				// Endpoint routes
				r.Route("/endpoint", func(r chi.Router) {
					r.Post("/", s.endpointHandler.Create)
					r.Get("/", s.endpointHandler.List)

					r.Route("/{endpointID}", func(r chi.Router) {
						r.Get("/", s.endpointHandler.Get)
						r.Put("/", s.endpointHandler.Update)
						r.Delete("/", s.endpointHandler.Delete)
						r.Get("/secret", s.endpointHandler.GetSecret)
						r.Post("/secret/rotate", s.endpointHandler.RotateSecret)
					})
				})

				// Message routes
				r.Route("/msg", func(r chi.Router) {
					r.Post("/", s.messageHandler.Create)

					r.Route("/{msgID}", func(r chi.Router) {
						r.Get("/", s.messageHandler.Get)
						r.Get("/attempt", s.messageHandler.ListAttempts)
						r.Post("/endpoint/{endpointID}/resend", s.messageHandler.Resend)
					})
				})
			})
		})
	})

	// Admin routes
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/health", s.adminHandler.HealthCheck)

		// Dispatcher management
		r.Get("/dispatchers", s.adminHandler.ListDispatchers)
		r.Get("/dispatchers/{dispatcherID}", s.adminHandler.GetDispatcher)
		r.Post("/dispatchers/{dispatcherID}/pause", s.adminHandler.PauseDispatcher)
		r.Post("/dispatchers/{dispatcherID}/resume", s.adminHandler.ResumeDispatcher)

		// Queue management
		r.Get("/queues", s.adminHandler.GetQueues)

		// DLQ management
		r.Get("/dlq", s.adminHandler.ListDLQ)
		r.Post("/dlq/retry", s.adminHandler.RetryDLQ)
		r.Delete("/dlq", s.adminHandler.ClearDLQ)
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}
