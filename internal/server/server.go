// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	_ "inkwell/docs" // swagger docs
	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/featureflags"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/observability"
	"inkwell/internal/repository"
	"inkwell/internal/service"
	"inkwell/internal/token"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	monitor        *observability.Monitor
	tracingStop    func(context.Context) error
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	tokens         *token.Service
	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	commentRepo    repository.CommentRepository
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	hubs           []wireableHub // all hubs for wiring/shutdown iteration
	featureFlags   *featureflags.Manager
	userService    *service.UserService
	postService    *service.PostService
	commentService *service.CommentService
	avatarService  *service.AvatarService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// The monitor owns its Prometheus registry; everything that records
	// metrics receives this instance.
	mon := observability.NewMonitor()

	// Initialize Redis
	cache.InitRedis(cfg.RedisURL, mon)

	return NewServerWithDeps(cfg, db, cache.GetClient(), mon)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and optionally
// performs explicit seeding. A nil monitor disables the owned-registry metrics.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, mon *observability.Monitor) (*Server, error) {
	// Initialize repositories
	userRepo := repository.NewUserRepository(db, mon)
	postRepo := repository.NewPostRepository(db, mon)
	commentRepo := repository.NewCommentRepository(db, mon)

	// Initialize Prometheus metrics
	var prom *fiberprometheus.FiberPrometheus
	if cfg.MetricsEnabled {
		prom = middleware.InitMetrics("inkwell-api")
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		monitor:        mon,
		tokens:         token.NewService(cfg.JWTSecret),
		userRepo:       userRepo,
		postRepo:       postRepo,
		commentRepo:    commentRepo,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}
	server.userService = service.NewUserService(server.userRepo, server.isAdminByUserID)
	server.postService = service.NewPostService(server.postRepo, server.isAdminByUserID)
	server.commentService = service.NewCommentService(server.commentRepo, server.postRepo, server.isAdminByUserID)
	server.avatarService = service.NewAvatarService(server.userRepo, cfg)
	// NOTE: seeding is intentionally NOT performed here. Seeding is
	// explicit during runtime bootstrap (cmd) or test setup.

	// The hub serves local websocket clients even without Redis; the
	// notifier bridges instances and only exists when Redis does.
	server.hub = notifications.NewHub(mon)
	server.hubs = []wireableHub{server.hub}
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
	}

	if cfg.TracingEnabled {
		stop, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "inkwell-api",
			ServiceVersion: "1.0.0",
			Environment:    cfg.Env,
			Enabled:        true,
			Exporter:       cfg.TracingExporter,
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SamplerRatio:   cfg.TracingSamplerRatio,
		})
		if err != nil {
			return nil, fmt.Errorf("tracing init failed: %w", err)
		}
		server.tracingStop = stop
	}

	return server, nil
}

// BuildApp constructs the Fiber app with the error normalizer installed.
// Handlers return their errors; this app routes every one of them through
// handleError.
func (s *Server) BuildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Inkwell API",
		ErrorHandler: s.handleError,
	})
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Owned-registry monitor (slow-request and error tallies)
	if s.monitor != nil {
		app.Use(middleware.MonitorMiddleware(s.monitor))
	}

	// OpenTelemetry spans + X-Trace-ID response header
	if s.config != nil && s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := ""
	if s.config != nil {
		origins = s.config.AllowedOrigins
	}
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests,
				models.NewRateLimitError(""))
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health", s.HealthCheck)
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoints: fiberprometheus for standard HTTP metrics, the
	// owned monitor registry and its JSON snapshot alongside.
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.monitor != nil {
		app.Get("/metrics/app", middleware.MonitorExposition(s.monitor))
		api.Get("/metrics/summary", s.MetricsSummary)
	}

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Stored avatars
	if s.config != nil && s.config.MediaDir != "" {
		app.Static("/media", s.config.MediaDir)
	}

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Get("/me", s.AuthRequired(), s.Me)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Public post routes (browse/search)
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.GetPosts)
	publicPosts.Get("/search", middleware.RateLimit(
		s.redis, 10, time.Minute, "search"), s.SearchPosts)
	publicPosts.Get("/:id/comments", s.GetComments)
	publicPosts.Get("/:id/likes", s.GetPostLikes)
	publicPosts.Get("/:id", s.GetPost)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	// User routes
	users := protected.Group("/users")
	users.Get("/", s.GetAllUsers)
	users.Get("/search", s.SearchUsers)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	users.Get("/:id/posts", s.GetUserPosts)
	users.Post("/:id/avatar", s.UploadAvatar)
	users.Put("/:id/password", s.ChangePassword)
	users.Post("/:id/promote-admin", s.AdminRequired(), s.PromoteToAdmin)
	users.Post("/:id/demote-admin", s.AdminRequired(), s.DemoteFromAdmin)
	users.Put("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)
	users.Get("/:id", s.GetUserProfile)

	// Protected post routes
	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(
		s.redis, 5, 5*time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", s.LikePost)
	posts.Delete("/:id/like", s.UnlikePost)
	posts.Post("/:id/comments", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_comment"), s.CreateComment)
	posts.Delete("/:id/comments/:commentId", s.DeleteComment)
	// Generic /:id routes (for item update, delete)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	// Websocket endpoint - authenticated, gated by the realtime_feed flag
	ws := api.Group("/ws", s.AuthRequired(), s.RealtimeFeedGate())
	ws.Get("/", s.WebsocketHandler())

	// Admin routes
	admin := protected.Group("/admin", s.AdminRequired())
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// HealthCheck handles GET /health. The body is the exact contract
// monitoring scripts match on.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "OK"})
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional; the app runs degraded (no cache, no limiter,
	// no realtime fan-out) without it.
	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overallStatus,
		"version": "1.0.0",
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication gate for protected routes: an
// explicit chain of extract, verify, revocation and user-resolution
// steps. Websocket upgrades may carry the token as a query parameter.
func (s *Server) AuthRequired() fiber.Handler {
	return middleware.AuthGate(s.authDeps())
}

func (s *Server) authDeps() middleware.AuthDeps {
	deps := middleware.AuthDeps{
		Tokens: s.tokens,
		ResolveUser: func(ctx context.Context, userID uint) (*models.User, error) {
			return s.userRepo.GetByID(ctx, userID)
		},
		AllowQueryToken: true,
	}
	if s.redis != nil {
		deps.IsRevoked = cache.IsTokenRevoked
	}
	return deps
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uint)
		if !ok {
			return models.NewUnauthorizedError(middleware.MsgNoToken)
		}

		admin, err := s.isAdminByUserID(c.UserContext(), userID)
		if err != nil {
			return models.NewInternalError(err)
		}
		if !admin {
			return models.NewForbiddenError("Admin access required")
		}

		return c.Next()
	}
}

// RealtimeFeedGate hides the websocket feed behind the realtime_feed
// flag. Disabled means the route does not exist as far as clients can
// tell. Runs after AuthRequired so percentage rollouts bucket by user.
func (s *Server) RealtimeFeedGate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(uint)
		if s.featureFlags == nil || !s.featureFlags.Enabled(featureflags.RealtimeFeed, userID) {
			return fiber.NewError(fiber.StatusNotFound, "Resource not found")
		}
		return c.Next()
	}
}

// optionalUserID resolves the caller's identity on public routes so
// responses can include viewer-specific fields (liked state, own
// drafts). Failures simply mean anonymous.
func (s *Server) optionalUserID(c *fiber.Ctx) (uint, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return 0, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return 0, false
	}

	claims, err := s.tokens.Verify(parts[1])
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.BuildApp()
	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Wire all hubs to the Redis subscriber if available
	if s.notifier != nil {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					log.Printf("failed to start %s wiring: %v", h.Name(), err)
				}
			}()
		}
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Shutdown the HTTP/WS server
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	// Flush pending spans
	if s.tracingStop != nil {
		if terr := s.tracingStop(ctx); terr != nil {
			log.Printf("error shutting down tracing: %v", terr)
		}
	}

	// Close database connection
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				log.Printf("error closing sql DB: %v", cerr)
			}
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
