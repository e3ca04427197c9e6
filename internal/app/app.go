// Package app wires storage, services and HTTP handlers into one server.
package app

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"mobilechat/internal/auth"
	"mobilechat/internal/config"
	"mobilechat/internal/handlers/apiserver"
	chathandlers "mobilechat/internal/handlers/chatserver"
	"mobilechat/internal/imtypes"
	"mobilechat/internal/kafka"
	"mobilechat/internal/keylock"
	"mobilechat/internal/middleware"
	"mobilechat/internal/retry"
	"mobilechat/internal/services"
	"mobilechat/internal/storage"
	"mobilechat/internal/subscription"
	ws "mobilechat/internal/websocket"
)

// Infra holds the external dependencies chosen by configuration.
type Infra struct {
	Store     storage.Store
	Blobs     imtypes.BlobStore
	Blacklist auth.TokenBlacklist
	Producer  kafka.MessageProducer
}

// App is the assembled server.
type App struct {
	Identity  *auth.LocalProvider
	Directory services.UserDirectory
	Graph     services.FriendGraphService
	Rooms     services.RoomRegistry
	Messages  services.MessageLog
	Accounts  services.AccountService

	// Sessions tracks websocket connections. Run must be started.
	Sessions *ws.Hub
	// Live fans out snapshots to subscriptions.
	Live *subscription.Hub

	// Handler serves REST, the live channel and local uploads, wrapped in CORS.
	Handler http.Handler
}

// New builds the services on top of infra.
func New(cfg config.Config, infra Infra, log *zap.Logger) *App {
	locks := keylock.New()
	live := subscription.NewHub(cfg.Subscription.MaxBacklog, log)
	policy := retry.FromConfig(cfg.Retry)

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	identity := auth.NewLocalProvider(infra.Store.Credentials(), hasher, cfg.Auth, infra.Blacklist)

	// 关系图先于用户目录创建，删除用户时由目录调用其 PurgeUser
	graph := services.NewFriendGraphService(infra.Store, locks, live, infra.Producer, cfg.Kafka, policy, log)
	directory := services.NewUserDirectory(infra.Store, locks, graph, infra.Producer, cfg.Kafka, policy, log)
	rooms := services.NewRoomRegistry(infra.Store, locks, live, hasher, policy, log)
	messages := services.NewMessageLog(infra.Store, locks, live, directory, infra.Blobs, cfg.Storage, infra.Producer, cfg.Kafka, policy, log)

	sessions := ws.NewHub(log)
	accounts := services.NewAccountService(identity, directory, infra.Blobs, sessions, cfg.Storage, log)
	queries := services.NewLiveQueries(graph, rooms, messages)

	routes := apiserver.Routes{
		Auth:     apiserver.NewAuthHandler(accounts, log),
		Users:    apiserver.NewUserHandler(directory, log),
		Friends:  apiserver.NewFriendHandler(graph, directory, log),
		Rooms:    apiserver.NewRoomHandler(rooms, messages, log),
		Uploads:  apiserver.NewUploadHandler(accounts, messages, cfg.Storage, log),
		AuthMW:   middleware.AuthMiddleware(identity, log),
		Live:     http.HandlerFunc(chathandlers.NewWebSocketHandler(sessions, queries, cfg.WebSocket, log).ServeWS),
		LivePath: cfg.APIServer.WebSocketPath,
	}
	if cfg.Storage.Type == "local" {
		routes.StaticPrefix = staticPrefix(cfg.Storage.BaseURL)
		routes.StaticDir = cfg.Storage.LocalPath
		log.Info("提供静态文件服务", zap.String("prefix", routes.StaticPrefix), zap.String("dir", routes.StaticDir))
	}

	return &App{
		Identity:  identity,
		Directory: directory,
		Graph:     graph,
		Rooms:     rooms,
		Messages:  messages,
		Accounts:  accounts,
		Sessions:  sessions,
		Live:      live,
		Handler:   withCORS(cfg.APIServer.CORS, apiserver.NewRouter(routes)),
	}
}

// Run serves websocket sessions until ctx is cancelled, then closes the
// subscription hub.
func (a *App) Run(ctx context.Context) {
	a.Sessions.Run(ctx)
	a.Live.Close()
}

// staticPrefix returns the path component of the public upload URL, so
// "http://cdn.example/uploads" and "/uploads" both mount at /uploads/.
func staticPrefix(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" {
		return "/uploads"
	}
	return "/" + strings.Trim(u.Path, "/")
}

// withCORS 将路由器包装在 CORS 中间件中，选项从配置中读取。
func withCORS(cfg config.CORSConfig, h http.Handler) http.Handler {
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods(cfg.AllowedMethods),
		handlers.AllowedHeaders(cfg.AllowedHeaders),
		handlers.ExposedHeaders(cfg.ExposedHeaders),
		handlers.MaxAge(cfg.MaxAge),
	}
	if cfg.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	return handlers.CORS(corsOptions...)(h)
}
