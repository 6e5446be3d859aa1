package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all graphspace server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`
	LogJSON    bool   `json:"log_json"`
	PoolSize   int    `json:"pool_size"`

	Panel bool `json:"panel"`
	Stdio bool `json:"stdio"`

	Graph        string   `json:"graph"`          // file loaded at startup
	Roots        []string `json:"roots"`          // directories open-graph/save-graph may touch
	AllowHTTP    bool     `json:"allow_http"`     // allow open-graph from URLs
	MaxGraphSize int64    `json:"max_graph_size"` // bytes

	LayoutEngine string  `json:"layout_engine"` // graphviz or circle
	LayoutRate   float64 `json:"layout_rate"`   // layout passes per second, 0 = unlimited
	AutoLayout   bool    `json:"auto_layout"`

	Autosave     string `json:"autosave"` // cron expression, empty disables
	SnapshotKeep int    `json:"snapshot_keep"`

	OTELEndpoint string `json:"otel_endpoint"`
	OTELInsecure bool   `json:"otel_insecure"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":4200",
		DBPath:       filepath.Join(graphspaceDir(), "graphspace.db"),
		LogLevel:     "info",
		LogJSON:      true,
		PoolSize:     8,
		Panel:        true,
		Stdio:        true,
		Roots:        []string{"."},
		MaxGraphSize: 10 << 20,
		LayoutEngine: "graphviz",
		AutoLayout:   true,
		Autosave:     "*/5 * * * *",
		SnapshotKeep: 20,
	}
}

func graphspaceDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".graphspace"
	}
	return filepath.Join(home, ".graphspace")
}

func settingsPath() string {
	return filepath.Join(graphspaceDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	envString("GRAPHSPACE_LISTEN_ADDR", &cfg.ListenAddr)
	envString("GRAPHSPACE_DB_PATH", &cfg.DBPath)
	envString("GRAPHSPACE_LOG_LEVEL", &cfg.LogLevel)
	envBool("GRAPHSPACE_LOG_JSON", &cfg.LogJSON)
	envInt("GRAPHSPACE_POOL_SIZE", &cfg.PoolSize)
	envBool("GRAPHSPACE_PANEL", &cfg.Panel)
	envBool("GRAPHSPACE_STDIO", &cfg.Stdio)
	envString("GRAPHSPACE_GRAPH", &cfg.Graph)
	if v := os.Getenv("GRAPHSPACE_ROOTS"); v != "" {
		cfg.Roots = filepath.SplitList(v)
	}
	envBool("GRAPHSPACE_ALLOW_HTTP", &cfg.AllowHTTP)
	if v := os.Getenv("GRAPHSPACE_MAX_GRAPH_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxGraphSize = n
		}
	}
	envString("GRAPHSPACE_LAYOUT_ENGINE", &cfg.LayoutEngine)
	if v := os.Getenv("GRAPHSPACE_LAYOUT_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LayoutRate = f
		}
	}
	envBool("GRAPHSPACE_AUTO_LAYOUT", &cfg.AutoLayout)
	if v, ok := os.LookupEnv("GRAPHSPACE_AUTOSAVE"); ok {
		cfg.Autosave = v // empty disables
	}
	envInt("GRAPHSPACE_SNAPSHOT_KEEP", &cfg.SnapshotKeep)
	envString("GRAPHSPACE_OTEL_ENDPOINT", &cfg.OTELEndpoint)
	envBool("GRAPHSPACE_OTEL_INSECURE", &cfg.OTELInsecure)

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	return cfg
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
