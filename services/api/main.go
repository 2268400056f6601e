// API service: visitor chat widget backend, owner dashboard API and the
// live-sync WebSocket endpoint.
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

	"github.com/estatedesk/internal/auth"
	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/config"
	"github.com/estatedesk/internal/email"
	"github.com/estatedesk/internal/handler"
	"github.com/estatedesk/internal/identity"
	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/middleware"
	"github.com/estatedesk/internal/push"
	"github.com/estatedesk/internal/repository"
	"github.com/estatedesk/internal/startup"
	"github.com/estatedesk/internal/storage"
	"github.com/estatedesk/internal/storage/memory"
	"github.com/estatedesk/internal/ws"
	"github.com/estatedesk/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory session store (no external services required)")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for the given password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			logger.Errorf("hash password: %v", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	logger.Info("starting API service")
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

	var store storage.Store
	if *dev {
		store = memory.New()
		logger.Info("using in-memory identity/session store")
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
	}
	defer store.Close()

	convRepo := repository.NewConversationRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	pushRepo := repository.NewPushSubscriptionRepository(pool)

	svc := chat.NewService(convRepo, msgRepo, store)

	if cfg.PushVAPIDPublicKey == "" || cfg.PushVAPIDPrivateKey == "" {
		if keys, err := push.EnsureVAPIDKeys(""); err == nil {
			cfg.PushVAPIDPublicKey = keys.PublicKey
			cfg.PushVAPIDPrivateKey = keys.PrivateKey
		} else {
			logger.Infof("VAPID: could not load or generate keys: %v (push disabled)", err)
		}
	}
	pushSender := push.NewSender(pushRepo, &push.VAPIDKeys{
		PublicKey:  cfg.PushVAPIDPublicKey,
		PrivateKey: cfg.PushVAPIDPrivateKey,
	}, cfg.PushSubscriber)
	if pushSender != nil {
		svc.SetPushSender(pushSender)
	} else {
		logger.Info("push notifications disabled (no VAPID keys)")
	}

	if cfg.SMTP.Username != "" && cfg.SMTP.Password != "" && cfg.Owner.Email != "" {
		svc.SetMailer(email.NewSender(&cfg.SMTP, cfg.Owner.Email))
	} else {
		logger.Info("inquiry emails disabled (SMTP or OWNER_EMAIL not configured)")
	}

	sessions := auth.NewService(auth.Config{
		OwnerEmail:        cfg.Owner.Email,
		OwnerPasswordHash: cfg.Owner.PasswordHash,
		JWTSecret:         []byte(cfg.Owner.JWTSecret),
		SessionTTL:        cfg.Owner.SessionTTL,
	}, store)
	resolver := identity.NewResolver(sessions, store)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(svc, cfg.MaxWSConnections)
	svc.SetNotifier(hub)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	secureCookies := os.Getenv("APP_ENV") == "production"
	chatH := handler.NewChatHandler(svc, resolver, secureCookies)
	adminH := handler.NewAdminHandler(svc)
	authH := handler.NewAuthHandler(sessions, cfg.Owner.SessionTTL, secureCookies)
	pushH := handler.NewPushHandler(pushRepo)
	configH := handler.NewConfigHandler(cfg.PushVAPIDPublicKey)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Do not compress WebSocket responses, otherwise the ResponseWriter
	// loses http.Hijacker and the upgrade fails with 500.
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
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-Token", "X-Visitor-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/push", configH.Push)

	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveActor(resolver))
		r.Use(middleware.RateLimitAPI)

		r.Post("/api/auth/login", authH.Login)
		r.Post("/api/auth/logout", authH.Logout)
		r.Get("/api/auth/me", authH.Me)

		r.Post("/api/chat/identity", chatH.StartConversation)
		r.Get("/api/chat/conversation", chatH.GetConversation)
		r.Delete("/api/chat/conversation", chatH.DeleteConversation)
		r.Post("/api/chat/messages", chatH.SendMessage)
		r.Post("/api/chat/read", chatH.MarkRead)

		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.OwnerOnly)
			r.Get("/api/admin/conversations", adminH.ListConversations)
			r.Get("/api/admin/conversations/{id}", adminH.GetConversation)
			r.Delete("/api/admin/conversations/{id}", adminH.DeleteConversation)
			r.Post("/api/admin/conversations/{id}/messages", adminH.SendMessage)
			r.Post("/api/admin/conversations/{id}/read", adminH.MarkRead)
			r.Post("/api/push/subscribe", pushH.Subscribe)
			r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		})
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
		user     = "estatedesk"
		password = "estatedesk_secret"
		database = "estatedesk"
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
