package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/snapworth/snapworth/internal/application"
	appr "github.com/snapworth/snapworth/internal/application/appraisals"
	apppay "github.com/snapworth/snapworth/internal/application/payments"
	"github.com/snapworth/snapworth/internal/config"
	"github.com/snapworth/snapworth/internal/domain/kv"
	dompay "github.com/snapworth/snapworth/internal/domain/payments"
	aiclient "github.com/snapworth/snapworth/internal/infra/ai/openai"
	mysqlp "github.com/snapworth/snapworth/internal/infra/db/mysql"
	postgresp "github.com/snapworth/snapworth/internal/infra/db/postgres"
	"github.com/snapworth/snapworth/internal/infra/httpserver"
	memorykv "github.com/snapworth/snapworth/internal/infra/kv/memory"
	rediskv "github.com/snapworth/snapworth/internal/infra/kv/redis"
	"github.com/snapworth/snapworth/internal/infra/records"
	minioStore "github.com/snapworth/snapworth/internal/infra/storage"
	"github.com/snapworth/snapworth/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()
	checkers := map[string]middleware.HealthChecker{}

	// select record store backend
	var backend kv.Store
	switch cfg.Store.Backend {
	case "redis":
		store, err := rediskv.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis connect error: %v", err)
		}
		defer store.Close()
		checkers["redis"] = middleware.CheckerFunc(store.Ping)
		backend = store
	case "memory":
		log.Printf("using in-memory record store; records do not survive restarts")
		backend = memorykv.New()
	default:
		log.Fatalf("unknown store backend: %s", cfg.Store.Backend)
	}
	repo := records.New(backend, cfg.Store.TTL)

	// init minio image store
	images, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// optional payment audit log
	var audit dompay.AuditRepository
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		audit = mysqlp.NewEventRepository(db)
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		defer db.Close()
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: db}
		audit = postgresp.NewEventRepository(db)
	case "":
		log.Printf("payment audit log disabled (no database driver configured)")
	default:
		log.Fatalf("unknown database driver: %s", cfg.Database.Driver)
	}

	// init services
	runner := application.NewGoRunner()
	appraisalsSvc := &appr.Service{
		Repo:   repo,
		Images: images,
		AI:     aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model),
		Clock:  application.SystemClock{},
	}
	paymentsSvc := &apppay.Service{
		Appraisals: appraisalsSvc,
		Audit:      audit,
		Runner:     runner,
		Secret:     []byte(cfg.Payments.WebhookSecret),
		Clock:      application.SystemClock{},
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 10))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Payment-Signature"},
		MaxAge:         300,
	}))
	mux.Mount("/", httpserver.NewRouter(appraisalsSvc, paymentsSvc, audit, cfg.Server.OpsKey, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // retry endpoint waits for a full AI cycle
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	// let scheduled completion units drain before exit
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Printf("timed out waiting for background appraisals")
	}
}
