package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"orgrag/internal/bootstrap"
	"orgrag/internal/model"
	mysqlClient "orgrag/internal/platform/mysql"
	"orgrag/internal/transport/http/handler"
	"orgrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(requestLogger(app.Logger), gin.Recovery())
	router.MaxMultipartMemory = int64(app.Config.Ingest.MaxFileBytes) + 1<<20

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, map[string]handler.HealthCheck{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, app.MySQL) },
		"redis": func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() },
		"rabbitmq": func(context.Context) error {
			if app.MQConn == nil || app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
		"vector_store": app.VectorStore.Ping,
	})
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	orgHandler := handler.NewOrganizationHandler(app.OrganizationService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService, int64(app.Config.Ingest.MaxFileBytes))
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)
	authGroup.POST("/users", requireAuth, middleware.RequireRole(model.RoleAdmin), authHandler.AddUser)

	orgGroup := v1.Group("/organization", requireAuth)
	orgGroup.GET("", orgHandler.Get)
	orgGroup.PUT("", middleware.RequireRole(model.RoleAdmin), orgHandler.Update)

	aiGroup := v1.Group("/ai")
	aiGroup.Use(requireAuth)
	aiGroup.POST("/chat", chatHandler.Chat)
	aiGroup.GET("/chats", chatHandler.ListChats)
	aiGroup.GET("/chats/recent", chatHandler.RecentChats)
	aiGroup.GET("/chats/:chatId", chatHandler.GetChat)
	aiGroup.PUT("/chats/:chatId", chatHandler.RenameChat)
	aiGroup.DELETE("/chats/:chatId", chatHandler.DeleteChat)
	aiGroup.POST("/upload", documentHandler.Upload)
	aiGroup.GET("/documents", documentHandler.List)
	aiGroup.DELETE("/documents/:docId", middleware.RequireRole(model.RoleAdmin), documentHandler.Delete)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
