package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"paytrack/internal/clients"
	"paytrack/internal/config"
	"paytrack/internal/repository"
	"paytrack/internal/service"
	"paytrack/internal/transport/rest"
	"paytrack/internal/transport/websocket"
	"paytrack/internal/validation"
	"paytrack/pkg/database/postgres"
	"paytrack/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const (
	exportTTL       = 30 * time.Minute
	cleanupInterval = 5 * time.Minute
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Info("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := mustInitPostgres(ctx, log, cfg.Postgres)
	defer postgres.Close(db)

	if err := repository.EnsureSchema(ctx, db); err != nil {
		log.Fatal("schema init error", zap.Error(err))
	}

	redisClient := mustInitRedis(ctx, log, cfg.Redis, cfg.ExportPrefix)
	defer redisClient.Close()

	exportStorage, err := clients.NewLocalStorage(cfg.ExportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
	if err != nil {
		log.Fatal("export storage init error", zap.Error(err))
	}

	evidence := mustInitEvidenceStore(ctx, log, cfg)

	wsHub := websocket.NewHub(log.Named("ws"))
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	paymentRepo := repository.NewPaymentRepository(db)

	paymentSvc := service.NewPaymentService(
		paymentRepo,
		evidence,
		validation.NewDefaultBuilder(),
		time.Now,
		cfg.Location,
		log.Named("payments"),
	)
	importSvc := service.NewImportService(paymentSvc, redisClient, wsClient, log.Named("import"))
	exportSvc := service.NewExportService(paymentSvc, exportStorage, redisClient, wsClient, log.Named("export"))

	handler := rest.NewHandler(paymentSvc, importSvc, exportSvc, exportSvc, paymentRepo, cfg.MaxUploadBytes, log.Named("http"))
	router := handler.InitRouter()

	// public root router: generated files and the websocket live outside the
	// API middleware stack
	root := chi.NewRouter()

	root.Get(strings.TrimSuffix(cfg.FilesPublicPrefix, "/")+"/{file}", func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, err := exportStorage.Path(file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		// prefer original filename in Content-Disposition (strip random prefix)
		orig := file
		if idx := strings.IndexByte(file, '_'); idx >= 0 {
			orig = file[idx+1:]
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orig))

		http.ServeFile(w, r, path)
	})

	root.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			http.Error(w, "client_id required", http.StatusBadRequest)
			return
		}
		log.Debug("ws connected", zap.String("client_id", clientID))
		wsHub.HandleWebSocket(w, r, clientID)
	})

	root.Mount("/", router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
	}).Handler(root)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// generated exports are only kept while their job status lives
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := exportStorage.CleanupOlderThan(exportTTL); err != nil {
					log.Warn("export cleanup error", zap.Error(err))
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	case sig := <-stop:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown error", zap.Error(err))
		}

		// stops the websocket hub and the cleaner
		cancel()

		log.Info("shutdown complete")
	}
}

func mustInitPostgres(ctx context.Context, log *zap.Logger, cfg config.PostgresConfig) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,

		MaxOpenConns:    20,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatal("postgres init error", zap.Error(err))
	}
	return db
}

func mustInitRedis(ctx context.Context, log *zap.Logger, cfg config.RedisConfig, jobPrefix string) *clients.RedisClient {
	client, err := clients.NewRedisClient(ctx, clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix + jobPrefix,
	})
	if err != nil {
		log.Fatal("redis init error", zap.Error(err))
	}
	return client
}

func mustInitEvidenceStore(ctx context.Context, log *zap.Logger, cfg config.AppConfig) service.BlobStore {
	if cfg.EvidenceBackend == "local" {
		store, err := clients.NewLocalStorage(cfg.EvidenceDir, "", "")
		if err != nil {
			log.Fatal("evidence storage init error", zap.Error(err))
		}
		return store
	}

	s3, err := clients.NewS3Client(ctx, clients.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		UseSSL:          cfg.S3.UseSSL,
		Region:          cfg.S3.Region,
		Prefix:          cfg.S3.Prefix,
	})
	if err != nil {
		log.Fatal("s3 init error", zap.Error(err))
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		log.Fatal("s3 bucket error", zap.Error(err))
	}
	return s3
}
