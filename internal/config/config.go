// Package config loads snapclass settings from an optional JSON file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the capture loop and dashboard.
const (
	DefaultPort          = "8080"
	DefaultIntervalSecs  = 3.0
	DefaultQuality       = 0.8
	DefaultHistorySize   = 50
	DefaultSource        = "cv:0"
	DefaultPredictPath   = "/predict-file"
	DefaultPredictPort   = "8000"
	DefaultFallbackLabel = "Unknown"
	DefaultErrorLabel    = "Error"
)

// Config holds everything cmd/snapclass needs to wire the capture loop.
type Config struct {
	// ServerURL is the classification endpoint. Empty means DefaultServerURL.
	ServerURL string `json:"server_url"`

	// ServerHost drives the default endpoint heuristic when ServerURL is empty.
	ServerHost string `json:"server_host"`

	// Interval between auto captures in seconds (fractional allowed).
	Interval float64 `json:"interval"`

	// Quality is the JPEG quality factor, 0-1.
	Quality float64 `json:"quality"`

	// Source selects the video source: "cv:<index|url>", "v4l:<device>", "file:<path>".
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	HistorySize int `json:"history_size"`

	// UploadTimeout bounds a single upload at the transport, in seconds. Zero means none.
	UploadTimeout float64 `json:"upload_timeout"`

	FallbackLabel string `json:"fallback_label"`
	ErrorLabel    string `json:"error_label"`

	Port      string `json:"port"`
	EventLog  string `json:"event_log"`
	LogLevel  string `json:"log_level"`
	AutoStart bool   `json:"auto_start"`
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		Interval:      DefaultIntervalSecs,
		Quality:       DefaultQuality,
		Source:        DefaultSource,
		HistorySize:   DefaultHistorySize,
		FallbackLabel: DefaultFallbackLabel,
		ErrorLabel:    DefaultErrorLabel,
		Port:          DefaultPort,
		LogLevel:      "info",
	}
}

// Load reads defaults, then the JSON file at path (if non-empty), then
// SNAPCLASS_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ServerURL = envString("SNAPCLASS_SERVER_URL", c.ServerURL)
	c.ServerHost = envString("SNAPCLASS_SERVER_HOST", c.ServerHost)
	c.Source = envString("SNAPCLASS_SOURCE", c.Source)
	c.Port = envString("PORT", envString("SNAPCLASS_PORT", c.Port))
	c.EventLog = envString("SNAPCLASS_EVENT_LOG", c.EventLog)
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	c.FallbackLabel = envString("SNAPCLASS_FALLBACK_LABEL", c.FallbackLabel)

	var err error
	if c.Interval, err = envFloat("SNAPCLASS_INTERVAL", c.Interval); err != nil {
		return err
	}
	if c.Quality, err = envFloat("SNAPCLASS_QUALITY", c.Quality); err != nil {
		return err
	}
	if c.HistorySize, err = envInt("SNAPCLASS_HISTORY_SIZE", c.HistorySize); err != nil {
		return err
	}
	if v := os.Getenv("SNAPCLASS_UPLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SNAPCLASS_UPLOAD_TIMEOUT: %w", err)
		}
		c.UploadTimeout = d.Seconds()
	}
	if v := os.Getenv("SNAPCLASS_AUTO_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SNAPCLASS_AUTO_START: %w", err)
		}
		c.AutoStart = b
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL(c.ServerHost)
	}
	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.FallbackLabel == "" {
		c.FallbackLabel = DefaultFallbackLabel
	}
	if c.ErrorLabel == "" {
		c.ErrorLabel = DefaultErrorLabel
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
}

// UploadTimeoutDuration returns UploadTimeout as a duration.
func (c *Config) UploadTimeoutDuration() time.Duration {
	return time.Duration(c.UploadTimeout * float64(time.Second))
}

// Validate checks that the config can drive the capture loop.
// The interval is not validated: sub-floor values are clamped by the scheduler.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute http(s) URL, got %q", c.ServerURL)
	}
	if c.Quality <= 0 || c.Quality > 1 {
		return fmt.Errorf("quality must be in (0, 1], got %v", c.Quality)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history_size must be positive, got %d", c.HistorySize)
	}
	if _, _, err := SplitSource(c.Source); err != nil {
		return err
	}
	if c.UploadTimeout < 0 {
		return fmt.Errorf("upload_timeout must not be negative")
	}
	return nil
}

// DefaultServerURL picks the classification endpoint for a deployment.
// Local deployments (empty host, localhost, loopback) talk to the local
// predictor; anything else is assumed to serve the predictor on the same host.
func DefaultServerURL(host string) string {
	if isLocalHost(host) {
		return "http://localhost:" + DefaultPredictPort + DefaultPredictPath
	}
	return "http://" + net.JoinHostPort(host, DefaultPredictPort) + DefaultPredictPath
}

func isLocalHost(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

// SplitSource splits a source descriptor like "cv:0" into kind and target.
func SplitSource(desc string) (kind, target string, err error) {
	kind, target, ok := strings.Cut(desc, ":")
	if !ok || target == "" {
		return "", "", fmt.Errorf("source must look like kind:target, got %q", desc)
	}
	switch kind {
	case "cv", "v4l", "file":
		return kind, target, nil
	}
	return "", "", fmt.Errorf("unknown source kind %q (want cv, v4l or file)", kind)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return i, nil
}
