package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/kdimtricp/vtrack/internal/api"
	"github.com/kdimtricp/vtrack/internal/config"
	"github.com/kdimtricp/vtrack/internal/database"
	"github.com/kdimtricp/vtrack/internal/detect"
	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/kdimtricp/vtrack/internal/jobs"
	"github.com/kdimtricp/vtrack/internal/pipeline"
	"github.com/kdimtricp/vtrack/internal/settings"
	"github.com/kdimtricp/vtrack/internal/storage"
	"github.com/kdimtricp/vtrack/internal/stream"
)

func main() {
	log, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	if err := godotenv.Load(); err == nil {
		log.Infof("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Criticalf("%v", err)
		os.Exit(1)
	}

	localStorage, err := storage.NewLocalStorage(cfg.UploadDir, cfg.ResultsDir)
	if err != nil {
		log.Criticalf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}

	db, err := database.NewDB(database.Config{SQLitePath: cfg.DBPath})
	if err != nil {
		log.Criticalf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := database.NewMigrator(db.Conn(), log).Run(database.Migrations()); err != nil {
		log.Criticalf("Failed to run migrations: %v", err)
		os.Exit(1)
	}

	jobRepo := database.NewJobRepository(db)
	if n, err := jobRepo.MarkInterrupted(context.Background()); err != nil {
		log.Warnf("Failed to mark interrupted jobs: %v", err)
	} else if n > 0 {
		log.Infof("Marked %d interrupted job(s) as failed", n)
	}

	ff, err := frame.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if err != nil {
		log.Criticalf("Failed to initialize ffmpeg: %v", err)
		os.Exit(1)
	}

	var trackers detect.Factory
	if cfg.DetectorURL != "" {
		trackers = detect.NewHTTPClient(cfg.DetectorURL, cfg.DetectorTimeout)
		log.Infof("Using tracker service at %s", cfg.DetectorURL)
	} else {
		trackers = detect.Nop{}
		log.Warnf("DETECTOR_URL not set; frames will pass through without detections")
	}

	tunables, err := settings.New(cfg.Settings)
	if err != nil {
		log.Criticalf("Invalid settings: %v", err)
		os.Exit(1)
	}

	jobManager := jobs.NewManager(log, jobRepo)
	processor := &pipeline.Processor{
		Log:      log,
		Jobs:     jobManager,
		Trackers: trackers,
		Settings: tunables,
		Results:  localStorage,
		OpenFile: func(path string) frame.Source {
			return ff.FileSource(path)
		},
		OpenWriter: func(path string, info frame.Info) (frame.Sink, error) {
			return ff.NewWriter(path, info)
		},
	}

	registry := stream.NewRegistry()
	hub := stream.NewHub(log, registry.LatestDetections)
	camera := frame.DeviceConfig{
		Format: cfg.CameraFormat,
		Device: cfg.CameraDevice,
		Width:  cfg.CameraWidth,
		Height: cfg.CameraHeight,
	}
	streams := &stream.Manager{
		Log:       log,
		Registry:  registry,
		Publisher: hub,
		Trackers:  trackers,
		Settings:  tunables,
		OpenDevice: func() frame.Source {
			return ff.DeviceSource(camera)
		},
		FrameRate:   cfg.StreamFrameRate,
		StopTimeout: cfg.StreamStopTimeout,
	}

	app := &api.App{
		Log:           log,
		Storage:       localStorage,
		Processor:     processor,
		Jobs:          jobManager,
		History:       jobRepo,
		Streams:       streams,
		Hub:           hub,
		Settings:      tunables,
		MaxUploadSize: cfg.MaxUploadSize,
		RateLimit:     cfg.RateLimit,
		ResultsDir:    localStorage.ResultsDir(),
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(app),
	}

	log.Infof("Server starting on port %s", cfg.Port)
	log.Infof("Upload directory: %s", cfg.UploadDir)
	log.Infof("Results directory: %s", cfg.ResultsDir)
	log.Infof("Database path: %s", cfg.DBPath)
	log.Infof("Camera: %s (%s)", cfg.CameraDevice, cfg.CameraFormat)
	log.Infof("Max upload size: %s", humanize.Bytes(uint64(cfg.MaxUploadSize)))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Criticalf("Server failed: %v", err)
		}
	case s := <-sig:
		log.Infof("Received %v, shutting down", s)
	}

	streams.StopAll()
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnf("Server shutdown: %v", err)
	}
	log.Infof("Server stopped")
}
