package main

import (
	"context"
	"strings"

	"crosslink-server/internal/chat"
	"crosslink-server/internal/config"
	"crosslink-server/internal/database"
	"crosslink-server/internal/engine"
	"crosslink-server/internal/handlers"
	"crosslink-server/internal/middleware"
	"crosslink-server/internal/redis"
	"crosslink-server/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found")
	}

	cfg := config.Load()
	initLogger(cfg)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}

	cache, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}

	hub := websocket.NewHub(cfg.ChannelBuffer)

	eng := engine.New(db, cache, hub, cfg)
	eng.AddObserver(chat.NewMaterializer(db))
	go eng.RunInvalidationRelay(context.Background())

	connectionHandler := handlers.NewConnectionHandler(db, eng, cache, cfg)
	matchHandler := handlers.NewMatchHandler(db, eng)
	eventsHandler := handlers.NewEventsHandler(eng)

	router := setupRoutes(cfg, connectionHandler, matchHandler, eventsHandler, hub)

	logrus.WithField("port", cfg.Port).Info("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}
}

func setupRoutes(cfg *config.Config, connectionHandler *handlers.ConnectionHandler,
	matchHandler *handlers.MatchHandler, eventsHandler *handlers.EventsHandler,
	hub *websocket.Hub) *gin.Engine {

	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthRequired(cfg.JWTSecret))
	{
		connections := v1.Group("/connections")
		{
			connections.POST("/:context/profiles/:profile_id", connectionHandler.Act)
			connections.DELETE("/:context/requests/:user_id", connectionHandler.Decline)
		}

		likes := v1.Group("/likes")
		{
			likes.GET("/", connectionHandler.ListLikers)
			likes.GET("/count", connectionHandler.CountLikers)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/", matchHandler.List)
			matches.DELETE("/:match_id", matchHandler.Unmatch)
		}

		v1.GET("/events", eventsHandler.Since)

		v1.GET("/ws", func(c *gin.Context) {
			websocket.Serve(hub, c)
		})
	}

	return router
}

func initLogger(cfg *config.Config) {
	if strings.EqualFold(cfg.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
}
