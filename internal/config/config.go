// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kdimtricp/vtrack/internal/settings"
)

type Config struct {
	Port          string
	UploadDir     string
	ResultsDir    string
	MaxUploadSize int64
	DBPath        string

	// RateLimit is the number of uploads and stream starts allowed per client
	// IP per minute. Zero disables limiting.
	RateLimit int

	DetectorURL     string
	DetectorTimeout time.Duration

	FFmpegPath  string
	FFprobePath string

	CameraDevice string
	CameraFormat string
	CameraWidth  int
	CameraHeight int

	StreamFrameRate   float64
	StreamStopTimeout time.Duration

	// Initial run-time settings.
	Settings settings.Values
}

// Load reads the configuration from the environment. Unset variables take
// their defaults; malformed ones are an error.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}
	defaults := settings.Defaults()

	c := &Config{
		Port:          e.str("PORT", "8080"),
		UploadDir:     e.str("UPLOAD_DIR", "./uploads"),
		ResultsDir:    e.str("RESULTS_DIR", "./results"),
		MaxUploadSize: e.int64("MAX_UPLOAD_SIZE", 104857600),
		DBPath:        e.str("DB_PATH", "./vtrack.db"),
		RateLimit:     e.int("RATE_LIMIT", 60),

		DetectorURL:     e.str("DETECTOR_URL", ""),
		DetectorTimeout: e.duration("DETECTOR_TIMEOUT", 10*time.Second),

		FFmpegPath:  e.str("FFMPEG_PATH", ""),
		FFprobePath: e.str("FFPROBE_PATH", ""),

		CameraDevice: e.str("CAMERA_DEVICE", "/dev/video0"),
		CameraFormat: e.str("CAMERA_FORMAT", "v4l2"),

		StreamFrameRate:   e.float("STREAM_FRAME_RATE", 30),
		StreamStopTimeout: e.duration("STREAM_STOP_TIMEOUT", time.Second),

		Settings: settings.Values{
			ConfThreshold: e.float("CONF_THRESHOLD", defaults.ConfThreshold),
			TrailLength:   e.int("TRAIL_LENGTH", defaults.TrailLength),
			FadeSteps:     e.int("TRAIL_FADE_STEPS", defaults.FadeSteps),
		},
	}

	if size := e.str("CAMERA_SIZE", ""); size != "" {
		w, h, err := ParseSize(size)
		if err != nil {
			e.fail("CAMERA_SIZE", err)
		}
		c.CameraWidth, c.CameraHeight = w, h
	}

	if e.err != nil {
		return nil, e.err
	}
	if c.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: must be positive")
	}
	if c.RateLimit < 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT: must not be negative")
	}
	if c.StreamFrameRate <= 0 {
		return nil, fmt.Errorf("invalid STREAM_FRAME_RATE: must be positive")
	}
	if err := c.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial settings: %w", err)
	}
	return c, nil
}

// ParseSize parses a "WIDTHxHEIGHT" string such as "640x480".
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return w, h, nil
}

// env collects the first parse error so Load can report it once.
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (e *env) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) int64(key string, def int64) int64 {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}
