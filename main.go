package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"docshub/internal/config"
	"docshub/internal/database/db_client"
	"docshub/internal/http/http_server"
	"docshub/internal/http/notificationhandler"
	"docshub/internal/http/resourcehandler"
	"docshub/internal/notify"
	"docshub/internal/redis/redis_client"
	"docshub/internal/redis/redis_functions"
	"docshub/internal/services/collab"
	"docshub/internal/services/notification"
	"docshub/internal/services/permission"
	"docshub/internal/services/resource"
	"docshub/internal/services/version"
	"docshub/internal/syncdb"
	"docshub/internal/syncnotify"
	"docshub/internal/ws"

	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// Load the Redis Functions lua
	if err := redis_functions.LoadAll(ctx, redisClient); err != nil {
		Log.Fatal("load-redis-funcs", zap.Error(err))
	}

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort,
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Services
	sink := notify.NewRedisSink(redisClient)
	resSvc := resource.NewResourceService(redisClient, pgDb)
	permSvc := permission.NewPermissionService(pgDb, sink, cfg.GrantRetries)
	verSvc := version.NewVersionService(pgDb)
	collabSvc := collab.NewCollabService(collab.NewRedisStager(redisClient), resSvc, permSvc, verSvc)
	notifSvc := notification.NewNotificationService(pgDb)

	// 6. Background: staged-edit flusher + notification stream tail
	syncdb.Run(ctx, redisClient, pgDb, cfg.FlushInterval)
	syncnotify.Run(ctx, redisClient, pgDb)

	// 7. WebSockets hub + gateway
	hub := ws.NewHub()
	wsSrv := ws.NewServer(hub, resSvc, permSvc, collabSvc)

	// 8. HTTP + WS server
	resHandler := resourcehandler.New(resSvc, permSvc, collabSvc, verSvc, hub)
	notifHandler := notificationhandler.New(notifSvc)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, resHandler, notifHandler)
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
