package server

import (
	"context"

	"support-chat/config"
	"support-chat/internal/events"
	"support-chat/internal/handler"
	"support-chat/internal/middleware"
	"support-chat/internal/repository"
	"support-chat/internal/services"
	"support-chat/internal/websocket"
	"support-chat/pkg/logger"
)

// Bus is the event transport the app publishes to and the gateway listens on.
type Bus interface {
	events.Publisher
	events.Subscriber
}

// Backend carries the storage and infrastructure adapters chosen by main.
// Optional fields may be left nil.
type Backend struct {
	Conversations repository.ConversationRepository
	Messages      repository.MessageRepository
	Users         repository.UserRepository
	Bus           Bus

	Limiter  middleware.MessageLimiter
	Labels   services.LabelCache
	Archiver services.TranscriptArchiver
	Health   func(ctx context.Context) error
}

// App is the assembled api server.
type App struct {
	Server  *Server
	Support *services.SupportService
	Auth    *services.AuthService
	Hub     *websocket.Hub
	Bridge  *websocket.RedisBridge
}

func NewApp(cfg *config.Config, l *logger.Logger, b Backend) *App {
	l = logger.OrNop(l)

	var opts []services.SupportOption
	if b.Labels != nil {
		opts = append(opts, services.WithLabelCache(b.Labels))
	}
	if b.Archiver != nil {
		opts = append(opts, services.WithTranscriptArchiver(b.Archiver))
	}
	support := services.NewSupportService(
		b.Conversations, b.Messages, b.Users,
		services.NewEventPublisher(b.Bus, l),
		l, opts...,
	)
	auth := services.NewAuthService(b.Users, cfg)

	wsLog := websocket.NewLogger(l)
	hub := websocket.NewHub()
	bridge := websocket.NewRedisBridge(b.Bus, hub, wsLog)
	authorizer := websocket.NewChannelAuthorizer(b.Conversations)

	srv := New(cfg, l)
	srv.SetupRoutes(&Handlers{
		Support:  handler.NewSupportHandler(support),
		Admin:    handler.NewAdminHandler(support),
		Realtime: websocket.NewHandler(hub, bridge, authorizer, wsLog),
	}, Deps{
		Auth:     auth,
		Limiter:  b.Limiter,
		Health:   b.Health,
		Realtime: hub.Stats,
	})

	return &App{Server: srv, Support: support, Auth: auth, Hub: hub, Bridge: bridge}
}

// Run drives the websocket hub until ctx is done, then drops bus subscriptions.
func (a *App) Run(ctx context.Context) {
	a.Hub.Run(ctx)
	a.Bridge.Close()
}
