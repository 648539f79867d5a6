package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Data struct {
		SessionsDir   string
		VideosDir     string
		ThumbnailsDir string
		RecordingsDir string
	}
	Render struct {
		WorkerCmd     string
		FFmpegPath    string
		MaxConcurrent int
		MaxAttempts   int
		EventDelayMS  int
		FrameRate     int
	}
	Ingest struct {
		FlushIntervalMS int
		MaxBatch        int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 3100)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("data.sessions_dir", "data/sessions")
	v.SetDefault("data.videos_dir", "data/videos")
	v.SetDefault("data.thumbnails_dir", "data/thumbnails")
	v.SetDefault("data.recordings_dir", "data/recordings")

	v.SetDefault("render.ffmpeg_path", "ffmpeg")
	v.SetDefault("render.max_concurrent", 2)
	v.SetDefault("render.max_attempts", 2)
	v.SetDefault("render.event_delay_ms", 50)
	v.SetDefault("render.frame_rate", 30)

	v.SetDefault("ingest.flush_interval_ms", 5000)
	v.SetDefault("ingest.max_batch", 50)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("data.sessions_dir", "SESSIONS_DIR")
	v.BindEnv("data.videos_dir", "VIDEOS_DIR")
	v.BindEnv("data.thumbnails_dir", "THUMBNAILS_DIR")
	v.BindEnv("data.recordings_dir", "RECORDINGS_DIR")

	v.BindEnv("render.worker_cmd", "RENDER_WORKER_CMD")
	v.BindEnv("render.ffmpeg_path", "FFMPEG_PATH")
	v.BindEnv("render.max_concurrent", "RENDER_MAX_CONCURRENT")
	v.BindEnv("render.max_attempts", "RENDER_MAX_ATTEMPTS")
	v.BindEnv("render.event_delay_ms", "RENDER_EVENT_DELAY_MS")
	v.BindEnv("render.frame_rate", "RENDER_FRAME_RATE")

	v.BindEnv("ingest.flush_interval_ms", "INGEST_FLUSH_INTERVAL_MS")
	v.BindEnv("ingest.max_batch", "INGEST_MAX_BATCH")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Data.SessionsDir = v.GetString("data.sessions_dir")
	c.Data.VideosDir = v.GetString("data.videos_dir")
	c.Data.ThumbnailsDir = v.GetString("data.thumbnails_dir")
	c.Data.RecordingsDir = v.GetString("data.recordings_dir")

	c.Render.WorkerCmd = v.GetString("render.worker_cmd")
	c.Render.FFmpegPath = v.GetString("render.ffmpeg_path")
	c.Render.MaxConcurrent = v.GetInt("render.max_concurrent")
	c.Render.MaxAttempts = v.GetInt("render.max_attempts")
	c.Render.EventDelayMS = v.GetInt("render.event_delay_ms")
	c.Render.FrameRate = v.GetInt("render.frame_rate")

	c.Ingest.FlushIntervalMS = v.GetInt("ingest.flush_interval_ms")
	c.Ingest.MaxBatch = v.GetInt("ingest.max_batch")

	log.Printf("config loaded: port=%s sessions_dir=%s", c.Server.Port, c.Data.SessionsDir)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
