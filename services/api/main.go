package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blogchat/internal/access"
	"github.com/blogchat/internal/blog"
	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/config"
	"github.com/blogchat/internal/directory"
	"github.com/blogchat/internal/handler"
	"github.com/blogchat/internal/logger"
	"github.com/blogchat/internal/middleware"
	"github.com/blogchat/internal/push"
	"github.com/blogchat/internal/repository"
	"github.com/blogchat/internal/startup"
	"github.com/blogchat/internal/storage"
	"github.com/blogchat/internal/storage/memory"
	"github.com/blogchat/internal/ws"
	"github.com/blogchat/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting chat API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	roomRepo := repository.NewRoomRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	guard := access.NewGuard(roomRepo)

	var subStore storage.SubscriptionStore
	if cfg.Redis.URL != "" {
		subStore = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
	} else {
		logger.Info("no REDIS_URL set, push subscriptions held in memory")
		subStore = memory.New()
	}
	defer subStore.Close()

	keys, err := push.EnsureVAPIDKeys("")
	if err != nil {
		logger.Errorf("vapid keys: %v", err)
		os.Exit(1)
	}
	notifier := push.NewNotifier(subStore, keys, cfg.PushSubscriber)

	hub := ws.NewHub(guard, cfg.MaxWSConnections)
	hubCtx, hubCancel := context.WithCancel(context.Background())

	// With Redis the relay carries events across instances; without it the
	// hub broadcasts locally only.
	var broadcaster chat.Broadcaster = hub
	var relayWg sync.WaitGroup
	if cfg.Redis.URL != "" {
		relay, err := ws.NewRedisRelay(hubCtx, cfg.Redis.URL, hub)
		if err != nil {
			logger.Errorf("event relay: %v", err)
			os.Exit(1)
		}
		defer relay.Close()
		broadcaster = relay
		relayWg.Add(1)
		go func() {
			defer relayWg.Done()
			relay.Run(hubCtx)
		}()
	}

	var blogLookup chat.BlogLookup
	if cfg.BlogServiceURL != "" {
		blogLookup = blog.NewClient(cfg.BlogServiceURL)
	}
	var userLookup chat.UserLookup
	var directoryClient *directory.Client
	if cfg.DirectoryServiceURL != "" {
		directoryClient = directory.NewClient(cfg.DirectoryServiceURL)
		userLookup = directoryClient
	}

	svc := chat.New(guard, roomRepo, msgRepo, blogLookup, userLookup, broadcaster, notifier)
	hub.BindService(svc)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	roomH := handler.NewRoomHandler(svc)
	msgH := handler.NewMessageHandler(svc)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	pushH := handler.NewPushHandler(notifier)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: the wrapped ResponseWriter would
	// not implement http.Hijacker and the upgrade fails with 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/key", pushH.PublicKey)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthValidate(cfg.AuthServiceURL, nil))

		r.Get("/api/rooms", roomH.ListRooms)
		r.Post("/api/rooms/direct", roomH.CreateDirectRoom)
		r.Post("/api/rooms/group", roomH.CreateGroupRoom)
		r.Get("/api/rooms/{roomID}", roomH.GetRoom)
		r.Post("/api/rooms/{roomID}/read", roomH.MarkRead)
		r.Post("/api/rooms/{roomID}/participants", roomH.AddParticipant)
		r.Delete("/api/rooms/{roomID}/participants/{userID}", roomH.RemoveParticipant)
		r.Post("/api/rooms/{roomID}/leave", roomH.Leave)

		r.Post("/api/rooms/{roomID}/messages", msgH.SendMessage)
		r.Put("/api/rooms/{roomID}/messages/{messageID}", msgH.EditMessage)
		r.Delete("/api/rooms/{roomID}/messages/{messageID}", msgH.DeleteMessage)
		r.Put("/api/rooms/{roomID}/messages/{messageID}/reaction", msgH.SetReaction)
		r.Delete("/api/rooms/{roomID}/messages/{messageID}/reaction", msgH.RemoveReaction)

		if directoryClient != nil {
			userH := handler.NewUserHandler(directoryClient)
			r.Get("/api/users/search", userH.Search)
		} else {
			r.Get("/api/users/search", func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"directory service not configured"}`, http.StatusServiceUnavailable)
			})
		}

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	relayWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "blogchat"
		password = "blogchat_secret"
		database = "blogchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
