package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"labelgen/internal/app"
	"labelgen/internal/barcode"
	"labelgen/internal/chrome"
	"labelgen/internal/compose"
	"labelgen/internal/handlers"
	"labelgen/internal/labelcache"
	"labelgen/internal/observe"
	"labelgen/internal/store"
	"labelgen/internal/templates"
	u "labelgen/internal/utils"
)

const purgeInterval = 5 * time.Minute

func main() {
	cfg := u.LoadConfig()
	// Allow common container env var to override chrome_path.
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		u.Error("Failed to create log directory", "error", err)
	}
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)

	deps, closeDeps := buildDeps(cfg)
	application := app.SetupApp(cfg, deps)

	idleConnsClosed := make(chan struct{})
	startServer(application, cfg, idleConnsClosed)
	<-idleConnsClosed

	closeDeps()
}

// buildDeps assembles the label pipeline. Backends that fail to start are
// logged and replaced by a degraded mode: no cache, or no Chrome pool.
func buildDeps(cfg u.Config) (app.Deps, func()) {
	metrics, err := observe.New(cfg.Metrics.Enabled)
	if err != nil {
		u.Error("Failed to start metrics, continuing without", "error", err)
		metrics, _ = observe.New(false)
	}

	bg, stopBackground := context.WithCancel(context.Background())

	var st store.Store
	if cfg.Cache.Enabled {
		st, err = store.Open(cfg.Cache)
		if err != nil {
			u.Error("Failed to open label cache, caching disabled", "backend", cfg.Cache.Backend, "error", err)
			st = nil
		} else {
			u.Info("Label cache ready", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL.String())
		}
	}
	if pg, ok := st.(*store.Postgres); ok {
		go pg.PurgePeriodically(bg, purgeInterval)
	}
	cache := labelcache.New(st,
		labelcache.WithPrefix(cfg.Cache.KeyPrefix),
		labelcache.WithRecorder(metrics),
		labelcache.WithSettings(cacheSettings(cfg.Layout)),
	)

	var pool *chrome.Pool
	if cfg.PDF.ChromePoolSize > 0 {
		if pool, err = chrome.NewPool(cfg); err != nil {
			u.Error("Failed to init Chrome pool, falling back to one-shot rendering", "error", err)
			pool = nil
		}
	}
	renderer := chrome.NewRenderer(cfg, pool)

	svc := handlers.NewLabelService(cfg,
		cache,
		barcode.NewDataMatrix(cfg.Layout.BarcodePixels),
		compose.New(composeLayout(cfg.Layout)),
		templates.NewResolver(cfg.Template.DefaultPath, renderer, templatePage(cfg.Layout)),
		pool,
	)

	deps := app.Deps{Labels: svc, Ready: cache.Ping}
	if metrics.Enabled() {
		deps.Metrics = metrics.Handler()
	}

	closeDeps := func() {
		stopBackground()
		if err := cache.Close(); err != nil {
			u.Error("Failed to close label cache", "error", err)
		}
		if pool != nil {
			pool.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(ctx); err != nil {
			u.Error("Failed to shut down metrics", "error", err)
		}
	}
	return deps, closeDeps
}

func composeLayout(l u.LayoutConfig) compose.Layout {
	return compose.Layout{
		PageWidthMM:   l.PageWidthMM,
		PageHeightMM:  l.PageHeightMM,
		BarcodeXMM:    l.BarcodeXMM,
		BarcodeYMM:    l.BarcodeYMM,
		BarcodeSizeMM: l.BarcodeSizeMM,
		TextXMM:       l.TextXMM,
		TextTopMM:     l.TextTopMM,
		Font:          l.Font,
		FontSize:      l.FontSize,
	}
}

// cacheSettings renders every layout knob that changes label output.
func cacheSettings(l u.LayoutConfig) string {
	return fmt.Sprintf("%+v", l)
}

func templatePage(l u.LayoutConfig) templates.Page {
	return templates.Page{
		WidthMM:       l.PageWidthMM,
		HeightMM:      l.PageHeightMM,
		BarcodeXMM:    l.BarcodeXMM,
		BarcodeYMM:    l.BarcodeYMM,
		BarcodeSizeMM: l.BarcodeSizeMM,
	}
}

func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
