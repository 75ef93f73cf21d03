package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/chainage"
	"github.com/pipetrax/fieldsyncgo/internal/config"
	"github.com/pipetrax/fieldsyncgo/internal/database"
	"github.com/pipetrax/fieldsyncgo/internal/handlers"
	"github.com/pipetrax/fieldsyncgo/internal/remote"
	"github.com/pipetrax/fieldsyncgo/internal/store"
	syncpkg "github.com/pipetrax/fieldsyncgo/internal/sync"
	"github.com/pipetrax/fieldsyncgo/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize the local durable store (embedded vs external detected
	// automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Apply schema migrations
	log.Println("🚀 Synchronizing database schema...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	// 4. Stores over the local database
	reports := store.NewReportStore(db)
	attachments := store.NewAttachmentStore(db)
	sessions := store.NewSessionStore(db)
	chainageCache := store.NewChainageStore(db)

	// 5. Remote system of record client
	remoteClient := remote.NewClient(cfg.Remote)

	// 6. Sync engine and chainage cache manager
	syncCfg := config.LoadSyncConfig()
	engine := syncpkg.NewEngine(reports, attachments, remoteClient, syncCfg)

	chainageMgr := chainage.NewManager(
		chainageCache,
		remoteClient,
		time.Duration(syncCfg.CacheStaleHours)*time.Hour,
		syncCfg.CacheWindow,
	)

	// 7. Connectivity monitor: regained connectivity drains the queue and
	// freshens the chainage cache
	monitor := syncpkg.NewMonitor(remoteClient, time.Duration(syncCfg.HealthCheckInterval)*time.Second)
	if syncCfg.Enabled {
		monitor.OnOnline(func() {
			engine.SyncAll()
		})
	} else {
		log.Println("📴 Sync disabled by configuration; reports will queue locally")
	}
	monitor.OnOnline(func() {
		if _, err := chainageMgr.EnsureFresh(true); err != nil {
			log.Printf("⚠️ Chainage cache refresh failed: %v", err)
		}
	})
	monitor.Start()

	if syncCfg.Enabled && syncCfg.SyncOnStartup && monitor.IsOnline() {
		go engine.SyncAll()
	}

	// 8. Periodic background sync as a safety net behind the event-driven path
	var autoSyncStop chan struct{}
	if syncCfg.Enabled && syncCfg.AutoSyncEnabled {
		autoSyncStop = make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Duration(syncCfg.AutoSyncInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if monitor.IsOnline() {
						engine.SyncAll()
					}
				case <-autoSyncStop:
					return
				}
			}
		}()
		log.Printf("✅ Auto-sync enabled (every %ds)", syncCfg.AutoSyncInterval)
	}

	// 9. WebSocket hub feeding sync events to the UI
	hub := websocket.NewHub()
	go hub.Run()
	events := engine.Events().Subscribe()
	go hub.RelayEvents(events)

	// 10. HTTP router
	router := handlers.NewRouter(cfg, reports, attachments, sessions, engine, chainageMgr, monitor, remoteClient, hub)

	// 11. Start server with graceful shutdown
	port := cfg.Port
	if port == "" {
		port = "3310"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("🚀 Field sync server starting on port %s\n", port)
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

	monitor.Stop()
	if autoSyncStop != nil {
		close(autoSyncStop)
	}
	engine.Stop()
	engine.Events().Unsubscribe(events)

	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
