// Package server contains the HTTP handlers for the board's API endpoints.
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"community/internal/blobstore"
	"community/internal/cache"
	"community/internal/cascade"
	"community/internal/config"
	"community/internal/database"
	"community/internal/middleware"
	"community/internal/repository"
	"community/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// httpMetrics registers the HTTP collectors once per process.
func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New("community-api")
	})
	return prom
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	store          *repository.Store
	blobs          blobstore.Store
	auth           *middleware.Authenticator
	promMiddleware *fiberprometheus.FiberPrometheus
	memberService  *service.MemberService
	postService    *service.PostService
	commentService *service.CommentService
	likeService    *service.LikeService
	imageService   *service.ImageService
}

// NewServer connects the database, Redis and the blob store, then builds the server.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	blobs, err := blobstore.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob store init failed: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.GetClient(), blobs), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Tests use it with an in-memory database and a stub blob store.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, blobs blobstore.Store) *Server {
	store := repository.NewStore(db)
	ttl := time.Duration(cfg.JWTTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	auth := middleware.NewAuthenticator(cfg.JWTSecret, ttl,
		middleware.WithRevocationStore(redisClient),
		middleware.WithMemberCheck(liveMember(store)),
	)

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		store:          store,
		blobs:          blobs,
		auth:           auth,
		promMiddleware: httpMetrics(),
		memberService:  service.NewMemberService(store, nil),
		postService:    service.NewPostService(store, cascade.NewOrchestrator(store), nil),
		commentService: service.NewCommentService(store, nil),
		likeService:    service.NewLikeService(store, nil),
		imageService:   service.NewImageService(store, blobs, cfg, nil),
	}
}

// liveMember accepts only members that have not withdrawn.
func liveMember(store *repository.Store) middleware.MemberCheck {
	return func(ctx context.Context, memberID uint) (bool, error) {
		_, err := store.Members.GetByID(ctx, memberID)
		if repository.IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	}
}

// NewApp returns a Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	maxMB := s.config.ImageMaxUploadSizeMB
	if maxMB <= 0 {
		maxMB = service.DefaultImageMaxUploadSizeMB
	}
	app := fiber.New(fiber.Config{
		AppName:   "community-api",
		BodyLimit: (maxMB + 1) * 1024 * 1024,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if disk, ok := s.blobs.(*blobstore.DiskStore); ok && strings.HasPrefix(s.config.PublicBaseURL, "/") {
		app.Static(s.config.PublicBaseURL, disk.Root())
	}

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/refresh", s.auth.Required(), s.Refresh)
	auth.Post("/logout", s.auth.Required(), s.Logout)

	// Public reads
	api.Get("/posts", s.ListPosts)
	api.Get("/posts/:id", s.GetPost)
	api.Get("/posts/:id/comments", s.ListComments)
	api.Get("/posts/:id/likes", s.CountLikes)
	api.Get("/posts/:id/images", s.ListImages)

	protected := api.Group("", s.auth.Required())

	members := protected.Group("/members")
	members.Get("/me", s.GetMe)
	members.Patch("/me", s.UpdateProfile)
	members.Put("/me/password", s.UpdatePassword)
	members.Delete("/me", s.Withdraw)

	posts := protected.Group("/posts")
	posts.Post("/", s.CreatePost)
	// Specific /:id/:resource routes before the generic /:id ones
	posts.Post("/:id/comments/:commentId/replies", s.CreateReply)
	posts.Post("/:id/comments", s.CreateComment)
	posts.Post("/:id/likes", s.ToggleLike)
	posts.Post("/:id/images", s.UploadImage)
	posts.Put("/:id/images/order", s.ReorderImages)
	posts.Delete("/:id/images/:imageId", s.DeleteImage)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	comments := protected.Group("/comments")
	comments.Put("/:commentId", s.UpdateComment)
	comments.Delete("/:commentId", s.DeleteComment)
}

// LivenessCheck reports that the process is up.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ReadinessCheck reports whether the database answers a ping.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"database": "ok"}
	status := fiber.StatusOK

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	if s.redis != nil {
		checks["redis"] = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			// The cache is optional; report it without failing readiness.
			checks["redis"] = "unavailable"
		}
	}

	state := "ok"
	if status != fiber.StatusOK {
		state = "unavailable"
	}
	return c.Status(status).JSON(fiber.Map{"status": state, "checks": checks})
}

// Store exposes the repositories for background jobs sharing the server's pool.
func (s *Server) Store() *repository.Store {
	return s.store
}

// Shutdown releases the Redis client and the database pool.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.WarnContext(ctx, "redis close failed", "error", err)
		}
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
