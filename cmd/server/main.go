package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relive/replay/internal/api"
	"relive/replay/internal/config"
	"relive/replay/internal/health"
	"relive/replay/internal/ingest"
	"relive/replay/internal/render"
	"relive/replay/internal/replay"
	"relive/replay/internal/session"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	st, err := session.Open(cfg.Data.SessionsDir)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	surface := render.NewProcessSurface(cfg.Render.WorkerCmd)
	encoder := render.NewFFmpegEncoder(cfg.Render.FFmpegPath)
	pipeline := render.NewPipeline(surface, encoder, render.Options{
		VideosDir:     cfg.Data.VideosDir,
		ThumbnailsDir: cfg.Data.ThumbnailsDir,
		MaxConcurrent: cfg.Render.MaxConcurrent,
		MaxAttempts:   cfg.Render.MaxAttempts,
		EventDelayMS:  cfg.Render.EventDelayMS,
		FrameRate:     cfg.Render.FrameRate,
	})
	if err := pipeline.Init(); err != nil {
		log.Fatalf("render pipeline: %v", err)
	}

	replays := replay.NewService(st, pipeline, cfg.Data.RecordingsDir)
	if err := replays.Init(); err != nil {
		log.Fatalf("replay service: %v", err)
	}

	collector := ingest.NewCollector(st,
		time.Duration(cfg.Ingest.FlushIntervalMS)*time.Millisecond, cfg.Ingest.MaxBatch)
	collector.Start()
	wsh := &ingest.WSHandler{Collector: collector}

	h := api.NewHandlers(st, replays)
	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(h))
	mux.HandleFunc("/ws/ingest", wsh.HandleIngestWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		status := health.CheckAll(cfg)
		w.Header().Set("Content-Type", "application/json")
		if !status.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Rendered artifacts and uploaded recordings are plain static files.
	mux.Handle("/videos/", http.StripPrefix("/videos/", http.FileServer(http.Dir(cfg.Data.VideosDir))))
	mux.Handle("/thumbnails/", http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(cfg.Data.ThumbnailsDir))))
	mux.Handle("/recordings/", http.StripPrefix("/recordings/", http.FileServer(http.Dir(cfg.Data.RecordingsDir))))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		// Flush buffered capture batches before draining HTTP.
		collector.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
