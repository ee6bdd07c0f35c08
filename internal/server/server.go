// Package server contains HTTP and WebSocket handlers for the e-Bantek API.
package server

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	_ "ebantek/docs" // swagger docs

	"ebantek/internal/cache"
	"ebantek/internal/config"
	"ebantek/internal/database"
	"ebantek/internal/middleware"
	"ebantek/internal/models"
	"ebantek/internal/notifications"
	"ebantek/internal/repository"
	"ebantek/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	tokenIssuer   = "ebantek-api"
	tokenAudience = "ebantek-client"
)

// Server wires configuration, storage, services and transport together.
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo    repository.UserRepository
	requestRepo repository.RequestRepository
	draftRepo   repository.DraftRepository

	notifier *notifications.Notifier
	hub      *notifications.Hub

	requestService *service.RequestService
	userService    *service.UserService
	fileService    *service.FileService
}

// NewServer creates a new server instance with all dependencies.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis and
// optionally performs explicit seeding.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	draftRepo := repository.NewDraftRepository(redisClient)

	prom := middleware.InitMetrics("ebantek-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
		requestRepo:    requestRepo,
		draftRepo:      draftRepo,
	}

	server.userService = service.NewUserService(userRepo)
	server.fileService = service.NewFileService(cfg)

	// Real-time status notifications ride on Redis pub/sub; without Redis the
	// workflow still runs, just without push delivery.
	var statusNotifier service.StatusNotifier
	if redisClient != nil {
		server.notifier = notifications.NewNotifier(redisClient)
		server.hub = notifications.NewHub()
		statusNotifier = notifications.NewStatusPublisher(server.notifier)
	}
	server.requestService = service.NewRequestService(requestRepo, userRepo, draftRepo, statusNotifier)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app.
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context middleware to propagate request ID and user identity
	app.Use(middleware.ContextMiddleware())

	// Prometheus metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS must run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
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
		// Never rate-limit preflight requests; they are handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Terlalu banyak permintaan, coba lagi nanti.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "e-Bantek Backend Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)

	// Protected routes
	protected := api.Group("", s.AuthRequired())
	protected.Post("/auth/logout", s.Logout)
	protected.Get("/auth/me", s.Me)

	// User routes
	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Get("/", s.RequirePermission(models.PermissionManageUsers), s.GetAllUsers)
	users.Get("/technical-managers",
		s.RequirePermission(models.PermissionAssignTechnicalManagers), s.GetTechnicalManagers)
	users.Get("/:id", s.RequirePermission(models.PermissionManageUsers), s.GetUserProfile)

	// Request routes
	requests := protected.Group("/requests")
	requests.Post("/", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/me", s.GetMyRequests)
	requests.Get("/assigned", s.GetAssignedRequests)
	requests.Get("/statistics", s.GetStatistics)
	requests.Get("/", s.GetAllRequests)

	// Draft snapshots (auto-save), keyed per user; must precede /:id routes.
	drafts := protected.Group("/requests/drafts")
	drafts.Put("/:key", s.SaveDraft)
	drafts.Get("/", s.ListDrafts)
	drafts.Get("/:key", s.GetDraft)
	drafts.Delete("/:key", s.DeleteDraft)

	// Define specific /:id/:resource routes BEFORE generic /:id route
	requests.Post("/:id/submit", s.SubmitRequest)
	requests.Post("/:id/cancel", s.CancelRequest)
	requests.Post("/:id/status", s.UpdateRequestStatus)
	requests.Post("/:id/reject", s.RejectRequest)
	requests.Post("/:id/assign", s.AssignRequest)
	requests.Post("/:id/comments", middleware.RateLimit(
		s.redis, 15, time.Minute, "add_comment"), s.AddComment)
	requests.Post("/:id/files", middleware.RateLimit(
		s.redis, 20, time.Minute, "upload_file"), s.UploadRequestFile)
	requests.Get("/:id/files/:fileId", s.DownloadRequestFile)
	requests.Get("/:id/files/:fileId/preview", s.PreviewRequestFile)
	// Generic /:id routes must be last
	requests.Get("/:id", s.GetRequest)
	requests.Put("/:id", s.UpdateRequest)
	requests.Delete("/:id", s.DeleteRequest)

	// WebSocket ticket issuance
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)

	// Websocket endpoint for real-time status notifications
	ws := api.Group("/ws", s.AuthRequired())
	ws.Get("/", s.WebsocketHandler())
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

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis carries drafts, rate limits and notifications; readiness
		// requires it.
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"message": "e-Bantek API",
		"version": "1.0.0",
		"status":  overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		isWSPath := strings.HasPrefix(path, "/api/ws")

		// 1. Try WebSocket ticket first (short-lived, single-use)
		ticket := c.Query("ticket")
		if ticket != "" && s.redis != nil {
			key := fmt.Sprintf("ws_ticket:%s", ticket)
			stored, err := s.redis.Get(c.Context(), key).Result()
			if err == nil {
				userID, role, parseErr := parseTicketValue(stored)
				if parseErr == nil {
					// Delete ticket immediately (single-use)
					s.redis.Del(c.Context(), key)
					s.setAuthLocals(c, userID, role)
					return c.Next()
				}
			}
			// A provided but invalid/expired ticket fails hard on WS paths
			if isWSPath {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Tiket WebSocket tidak valid atau kedaluwarsa"))
			}
		}

		// 2. Fall back to JWT (Bearer token or query param)
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Reject token in query param for WS routes (must use ticket)
		if tokenString == "" && !isWSPath {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Autentikasi diperlukan"))
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})

		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Token tidak valid atau kedaluwarsa"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Klaim token tidak valid"))
		}

		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != tokenIssuer {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Penerbit token tidak valid"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != tokenAudience {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Audiens token tidak valid"))
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Klaim subjek tidak valid"))
		}

		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("ID pengguna dalam token tidak valid"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if cache.IsTokenBlacklisted(c.Context(), jti) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Token telah dicabut"))
			}
			c.Locals("jti", jti)
			if exp, expOk := claims["exp"].(float64); expOk {
				c.Locals("tokenExp", int64(exp))
			}
		}

		role := models.Role("")
		if r, roleOk := claims["role"].(string); roleOk {
			role = models.Role(r)
		}

		s.setAuthLocals(c, uint(userID), role)
		return c.Next()
	}
}

// setAuthLocals stores the authenticated identity in fiber locals and syncs
// it to the request context for logging and downstream services.
func (s *Server) setAuthLocals(c *fiber.Ctx, userID uint, role models.Role) {
	c.Locals("userID", userID)
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
	if role != "" {
		c.Locals("userRole", role)
		ctx = context.WithValue(ctx, middleware.UserRoleKey, string(role))
	}
	c.SetUserContext(ctx)
}

// parseTicketValue splits the "userID:role" value stored for a WS ticket.
func parseTicketValue(stored string) (uint, models.Role, error) {
	idPart, rolePart, _ := strings.Cut(stored, ":")
	userID, err := strconv.ParseUint(idPart, 10, 32)
	if err != nil {
		return 0, "", err
	}
	return uint(userID), models.Role(rolePart), nil
}

// RequirePermission returns middleware that rejects callers whose role lacks
// the given permission. The decision fails closed: an unknown role has no
// permissions. Must be placed after AuthRequired.
func (s *Server) RequirePermission(perm models.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := s.requireActor(c)
		if err != nil {
			return nil
		}
		if !models.RoleHasPermission(actor.Role, perm) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewAccessDeniedError("Anda tidak memiliki izin untuk mengakses sumber daya ini"))
		}
		return c.Next()
	}
}

// RequireRole returns middleware that rejects callers outside the given roles.
// Must be placed after AuthRequired.
func (s *Server) RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := s.requireActor(c)
		if err != nil {
			return nil
		}
		if !models.HasAnyRole(actor.Role, roles...) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewAccessDeniedError("Peran Anda tidak diizinkan mengakses sumber daya ini"))
		}
		return c.Next()
	}
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "e-Bantek API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	// Wire the notification hub to the Redis subscriber if available
	if s.notifier != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				log.Printf("failed to start notification wiring: %v", err)
			}
		}()
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			log.Printf("error shutting down notification hub: %v", err)
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
