package main

import (
	"collaborative-canvas/internal/auth"
	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/config"
	"collaborative-canvas/internal/db"
	"collaborative-canvas/internal/gateway"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/realtime"
	"collaborative-canvas/internal/user"
	"collaborative-canvas/internal/worker"
	"collaborative-canvas/redis"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	config.LoadConfig()
	auth.Init(config.AppConfig.JWTSecret)

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	// Seed database with initial data (for development)
	if config.AppConfig.Environment == "development" {
		db.SeedData()
	}

	// Initialize Redis
	redis.InitRedis()
	cache := redis.NewCache(redis.RedisClient)

	// Realtime transport: redis pub/sub across processes, in-process hub
	// when redis is unavailable.
	var transport realtime.Transport
	if redis.RedisClient != nil {
		transport = realtime.NewRedisTransport(redis.RedisClient, config.AppConfig.PresenceTTL)
	} else {
		log.Println("Realtime transport falling back to in-process hub")
		transport = realtime.NewHub()
	}

	// Background pool for async cache fills
	pool := worker.NewWorkerPool(4)
	defer pool.Shutdown()

	// Initialize repository
	userRepo := user.NewRepository(db.AppDb)
	canvasRepo := canvas.NewRepository(db.AppDb)
	// Initialize service
	userService := user.NewService(userRepo)
	canvasService := canvas.NewService(canvasRepo, cache, pool)
	// Initialize handler
	userHandler := user.NewHandler(userService)
	canvasHandler := canvas.NewHandler(canvasService)
	wsGateway := gateway.New(transport)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}

	if config.AppConfig.Environment == "development" {
		// Allow all origins in development
		corsConfig.AllowAllOrigins = true
	} else {
		// Restrict origins in production
		corsConfig.AllowOrigins = []string{config.AppConfig.FrontendAddress}
	}
	router.Use(cors.New(corsConfig))

	authMiddleware := &middleware.Auth{UserService: userService}
	authorized := authMiddleware.AuthMiddleWare()

	// User routes
	router.POST("/register", userHandler.Register)
	router.POST("/login", userHandler.Login)
	router.GET("/profile", authorized, userHandler.GetProfile)

	// Canvas routes
	router.POST("/canvases", authorized, canvasHandler.Create)
	router.GET("/canvases", authorized, canvasHandler.List)
	router.GET("/canvases/:id", authorized, canvasHandler.Show)
	router.PATCH("/canvases/:id", authorized, canvasHandler.Update)
	router.DELETE("/canvases/:id", authorized, canvasHandler.Delete)
	router.POST("/canvases/:id/duplicate", authorized, canvasHandler.Duplicate)

	// Realtime relay (token via query string, websockets can't set headers)
	router.GET("/realtime/canvases/:id", authorized, wsGateway.Handle)

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	log.Println("Server shutdown complete")
}
