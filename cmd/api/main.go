package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opslink-dev/fieldsync/internal/config"
	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/diagnostics"
	"github.com/opslink-dev/fieldsync/internal/handlers"
	"github.com/opslink-dev/fieldsync/internal/models"
	"github.com/opslink-dev/fieldsync/internal/remote"
	"github.com/opslink-dev/fieldsync/internal/store"
	"github.com/opslink-dev/fieldsync/internal/sync"
	"github.com/opslink-dev/fieldsync/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.ReviewerAuth{},

		// Maintenance entities
		&models.Asset{},
		&models.WorkOrder{},
		&models.MeterReading{},
		&models.Photo{},

		// Reconciliation tables
		&models.RetryOp{},
		&models.Upload{},
		&models.Collection{},
		&models.SyncState{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Persistence layer
	collections := store.NewCollections(db)
	records := store.NewRecords(db, collections)
	stateRepo := store.NewSyncStateRepo(db)

	// 5. Reconciliation core
	log.Println("🔄 Initializing Sync Coordinator...")
	syncCfg := config.LoadSyncConfig()

	audit := sync.NewAuditLog(collections, syncCfg.ConflictLogCap)
	errlog := sync.NewErrorLog(collections, syncCfg.ErrorLogCap)
	resolver := sync.NewResolver(audit, sync.ResolverConfig{
		BackdatedCompletionThresholdMs: syncCfg.BackdatedCompletionThresholdMs,
	})

	retries, err := sync.NewRetryQueue(store.NewRetryRepo(db), sync.RetryQueueConfig{
		MaxRetries:         syncCfg.MaxRetries,
		MinRetryIntervalMs: syncCfg.MinRetryIntervalMs,
		MaxRetryIntervalMs: syncCfg.MaxRetryIntervalMs,
	})
	if err != nil {
		log.Fatalf("Failed to load retry queue: %v", err)
	}

	uploads, err := sync.NewUploadTracker(store.NewUploadRepo(db), sync.UploadTrackerConfig{
		MaxAttempts:        syncCfg.MaxUploadAttempts,
		StaleThresholdMs:   syncCfg.UploadStaleThresholdMs,
		RetentionMs:        syncCfg.UploadRetentionMs,
		MinRetryIntervalMs: syncCfg.MinRetryIntervalMs,
	})
	if err != nil {
		log.Fatalf("Failed to load upload tracker: %v", err)
	}

	// 6. Remote backend client
	client := remote.NewClient(cfg.Remote)
	if cfg.Remote.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Authenticate(ctx); err != nil {
			log.Printf("⚠️ Remote: authentication failed, will retry during sync: %v", err)
		} else {
			log.Println("✅ Remote: authenticated")
		}
		cancel()
	} else {
		log.Println("📴 Remote: no backend configured, running offline")
	}

	// 7. WebSocket hub for live sync events
	hub := websocket.NewHub()
	go hub.Run()

	// 8. Sync coordinator
	coordinator := sync.NewCoordinator(syncCfg, sync.CoordinatorDeps{
		Remote:   client,
		Local:    records,
		States:   stateRepo,
		Resolver: resolver,
		Retries:  retries,
		Uploads:  uploads,
		Audit:    audit,
		ErrorLog: errlog,
		Events:   hub,
	})
	if syncCfg.Enabled {
		if err := coordinator.Start(); err != nil {
			log.Printf("⚠️ Sync Coordinator: Failed to start: %v", err)
		} else {
			log.Println("✅ Sync Coordinator: Started successfully")
		}
	}

	// 9. Diagnostics collector
	probe := &diagnostics.BackendProbe{Remote: client}
	collector := diagnostics.NewCollector(diagnostics.CollectorConfig{
		CacheDir:      cfg.Storage.CacheDir,
		PersistentDir: cfg.Storage.PersistentDir,
	}, diagnostics.CollectorDeps{
		Device:  &diagnostics.HostDevice{InstanceID: cfg.InstanceID},
		Storage: diagnostics.DiskInspector{},
		Network: probe,
		Audit:   audit,
		ErrLog:  errlog,
		Retries: retries,
		Uploads: uploads,
		States:  stateRepo,
	})

	// Connectivity regained triggers a drain attempt
	go func() {
		for status := range probe.Subscribe() {
			hub.Publish("connectivity_changed", status)
			if status.Reachable {
				coordinator.RequestFullSync()
			}
		}
	}()

	// 10. HTTP router
	router := handlers.NewRouter(handlers.RouterDeps{
		DB:          db,
		Config:      cfg,
		Records:     records,
		Coordinator: coordinator,
		Audit:       audit,
		ErrorLog:    errlog,
		Retries:     retries,
		Uploads:     uploads,
		Collector:   collector,
		Hub:         hub,
	})

	// 11. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Handler(),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Server starting on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	coordinator.Stop()
	probe.Close()

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
