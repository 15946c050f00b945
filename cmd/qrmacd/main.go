package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/pflag"

	"qr-mac-backend/config"
	"qr-mac-backend/internal/api"
	"qr-mac-backend/internal/assetcache"
	"qr-mac-backend/internal/camera"
	"qr-mac-backend/internal/camera/snapshot"
	"qr-mac-backend/internal/db"
	"qr-mac-backend/internal/notification"
	"qr-mac-backend/internal/render"
	"qr-mac-backend/internal/scanner"
	"qr-mac-backend/internal/store"
	"qr-mac-backend/internal/web"
)

func main() {
	logger := log.New(os.Stdout, "qrmacd ", log.LstdFlags)

	var configPath string
	flagSet := pflag.NewFlagSet("qrmacd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: $CONFIG_PATH or ./config/config.yaml)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Fatalf("invalid arguments: %v", err)
	}
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var storage store.Storage
	switch cfg.Storage.Backend {
	case "memory":
		storage = store.NewMemoryStorage()
	default:
		storage = store.NewGormStorage(gormDB)
	}

	codes := store.NewCodeStore(storage, cfg.Storage.Key)
	list := render.NewListRenderer("/api/codes")
	codes.OnChange(func(c []string) { list.Render(c) })

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		codes.OnAdd(func(code string) { pool.Dispatch(code) })
		logger.Printf("push notifications enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	codes.Load(ctx)
	logger.Printf("code store loaded with %d codes", codes.Len())

	preview := camera.NewPreviewSink()
	notices := notification.NewNoticeBoard()
	manager := camera.NewManager(camera.Config{
		Devices:  snapshot.NewDevices(cfg.Camera.SnapshotURL, nil, cfg.Camera.FrameInterval, cfg.Camera.ProbeTimeout),
		Sink:     preview,
		Engines:  scanner.Factory{},
		Notifier: notices,
		Codes:    codes,
		Options: camera.Options{
			HighlightScanRegion:      cfg.Scanner.HighlightScanRegion,
			ReturnDetailedScanResult: cfg.Scanner.ReturnDetailedScanResult,
			MaxScansPerSecond:        cfg.Scanner.MaxScansPerSecond,
			PreferredCamera:          cfg.Scanner.PreferredCamera,
		},
	})

	static, err := web.Handler()
	if err != nil {
		logger.Fatalf("failed to prepare web assets: %v", err)
	}
	offline := assetcache.NewWorker(assetcache.NewCacheStorage(), cfg.Offline.CacheName, cfg.Offline.Assets,
		assetcache.HandlerFetcher{Handler: static})
	if err := offline.Install(ctx); err != nil {
		// Installing is best effort; uncached assets are served from the origin.
		logger.Printf("offline cache install failed: %v", err)
	} else {
		removed := offline.Activate()
		logger.Printf("offline cache %s active, %d old caches removed", offline.Name(), len(removed))
	}

	handler := api.NewHandler(api.Deps{
		Codes:   codes,
		List:    list,
		Cart:    render.NewCart(render.NewQRPainter(), cfg.Cart.QRSize),
		Scanner: manager,
		Preview: preview,
		Notices: notices,
		DB:      gormDB,
		Webpush: webpushOptions,
	})
	router := api.NewRouter(handler, cfg.Server, offline)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Printf("camera shutdown: %v", err)
	}
	codes.Persist(shutdownCtx)
	if n := notices.Len(); n > 0 {
		logger.Printf("%d notices were never collected", n)
	}

	logger.Println("Server gracefully stopped")
}
