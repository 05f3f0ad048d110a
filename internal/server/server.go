package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-chat/config"
	"support-chat/internal/handler"
	"support-chat/internal/middleware"
	"support-chat/internal/transport/httpdto"
	"support-chat/internal/websocket"
	"support-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Support  *handler.SupportHandler
	Admin    *handler.AdminHandler
	Realtime *websocket.Handler
}

// Deps are the cross-cutting collaborators the routes need.
type Deps struct {
	Auth    middleware.TokenVerifier
	Limiter middleware.MessageLimiter
	// Health reports backing store readiness; nil means always healthy.
	Health func(ctx context.Context) error
	// Realtime reports gateway load on /health when set.
	Realtime func() websocket.Stats
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router, mainly for httptest.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Deps) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		body := gin.H{"status": "healthy"}
		if deps.Realtime != nil {
			body["realtime"] = deps.Realtime()
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(body))
	})

	authed := middleware.AuthMiddleware(deps.Auth)

	support := s.engine.Group("/v1/support", authed)
	{
		support.GET("/me/admin", handlers.Support.AdminCheck)
		support.POST("/conversations", handlers.Support.Resolve)
		support.POST("/conversations/new", handlers.Support.Create)
		support.GET("/conversations/open", handlers.Support.FindOpen)
		support.GET("/conversations/:id", handlers.Support.Get)
		support.GET("/conversations/:id/status", handlers.Support.Status)
		support.GET("/conversations/:id/messages", handlers.Support.ListMessages)
		support.POST("/conversations/:id/messages", middleware.MessageRateLimitMiddleware(deps.Limiter), handlers.Support.SendMessage)
	}

	admin := s.engine.Group("/v1/admin", authed, middleware.RequireAdmin())
	{
		admin.GET("/conversations", handlers.Admin.Inbox)
		admin.GET("/users/:id/label", handlers.Admin.OwnerLabel)
		admin.POST("/conversations/:id/close", handlers.Admin.Close)
		admin.POST("/conversations/:id/reopen", handlers.Admin.Reopen)
		admin.DELETE("/conversations/:id", handlers.Admin.Delete)
	}

	if handlers.Realtime != nil {
		s.engine.GET("/v1/realtime", authed, handlers.Realtime.Connect)
	}
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
