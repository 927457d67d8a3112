package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"media_bot/internal/api"
	"media_bot/internal/bot"
	"media_bot/internal/browse"
	"media_bot/internal/chat"
	"media_bot/internal/config"
	"media_bot/internal/filter"
	"media_bot/internal/scheduler"
	"media_bot/internal/source"
	"media_bot/internal/storage"
	"media_bot/internal/task"
	"media_bot/internal/throughput"
	"media_bot/internal/uploader"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog := newLogger(cfg.LogLevel, cfg.LogFile)
	defer closeLog()

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		log.Error("load settings", "path", cfg.SettingsPath, "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	up, err := uploader.New(ctx, settings.Upload, log)
	if err != nil {
		log.Error("create uploader", "driver", settings.Upload.Driver, "error", err)
		os.Exit(1)
	}
	if m, ok := up.(*uploader.Minio); ok {
		bucketCtx, cancelBucket := context.WithTimeout(ctx, 30*time.Second)
		if err := m.EnsureBucket(bucketCtx); err != nil {
			log.Warn("ensure upload bucket", "bucket", settings.Upload.Bucket, "error", err)
		}
		cancelBucket()
	}

	tgAPI, err := bot.NewAPI(cfg)
	if err != nil {
		log.Error("connect to telegram", "error", err)
		os.Exit(1)
	}

	registry := chat.NewRegistry(store)
	archive := source.NewArchive(store)
	tracker := throughput.New(nil)
	transport := bot.NewTransport(tgAPI, http.DefaultClient, log)

	opts := task.Options{
		Source:        archive,
		Downloader:    transport,
		Forwarder:     transport,
		Tracker:       tracker,
		Reporter:      bot.NewReporter(tgAPI, log),
		MaxConcurrent: settings.MaxDownloadTask,
		RetryDelay:    settings.RetryDelay,
		SavePath:      settings.SavePath,
		DeleteLocal:   settings.Upload.DeleteLocal,
		Logger:        log,
		FilterCache:   filter.NewCache(settings.Location()),
	}
	if up != nil {
		opts.Uploader = up
	}
	orch := task.New(opts)

	b := bot.New(tgAPI, cfg, settings, store, registry, orch, tracker, log)
	browser := browse.NewManager(browse.Options{
		Lister:     archive,
		Dispatcher: b,
		Cleaner:    b,
		TTL:        settings.BrowseTTL,
		Logger:     log,
	})
	b.SetBrowser(browser)

	sched := scheduler.New(registry, orch, store, settings.Chats, log)

	log.Info("starting bot", "save_path", settings.SavePath, "chats", len(settings.Chats))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		browser.Run(ctx, time.Minute)
	}()
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.New(tracker, orch, log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("api listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("api server", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	b.Run(ctx)
	wg.Wait()

	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()
	if err := registry.PersistAll(persistCtx); err != nil {
		log.Error("persist chats", "error", err)
	}

	log.Info("bot stopped")
}

// newLogger builds the process logger. With a log file set, records go to
// stderr and to a rotated file.
func newLogger(level, file string) (*slog.Logger, func()) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotated)
		closeFn = func() { _ = rotated.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn
}
