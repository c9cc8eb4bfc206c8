// Package config loads pipeline, path and ingestor settings from the
// environment, following the same getEnv/getEnvInt/getEnvBool shape as this
// codebase's other env-driven components.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mediacat/mediacat/internal/errs"
)

// Config holds everything the orchestrator needs to wire the catalog
// pipeline. Load from environment; Validate is called automatically by Load.
type Config struct {
	// Paths
	BaseDir    string // prefix used to resolve relative event paths
	CacheDir   string // local scratch dir for index files, state, kv
	LeaderPath string // e.g. <base>/locks/kv-leader.info

	// Pipeline concurrency (<=0 in env resolves to a NumCPU-derived default)
	ValidateWorkers   int
	LightWorkers      int
	BackgroundWorkers int

	// Stage-1 -> stage-2 enqueue rate limit (tokens/sec); 0 = unlimited.
	EnqueueRateLimit float64

	// HashIndex
	HashIndexDir         string
	HashIndexFlushMin    time.Duration
	HashIndexFlushBudget float64 // fraction of interval a flush may take before the interval doubles

	// EventIngestor
	ConsumerGroup  string
	ConsumerName   string
	PendingIdle    time.Duration // ~30s idle threshold for pending-entry replay
	BackoffBase    time.Duration // B
	BackoffMaxMult int           // cap on attempts multiplier (6 => max ~6B)

	// Orchestrator startup
	LeaderWaitLimit time.Duration

	// MetaKV
	MetaKVPath string // sqlite file path

	// HTTP surface
	HTTPAddr string

	// VFSFuse (optional real mount alongside the HTTP surface)
	FuseMountPoint string // "" = disabled
	FuseAllowOther bool

	// Sidecar formats generated for every ingested file.
	SidecarFormats []string // e.g. ["meta", "nfo"]
}

// Load reads configuration from the environment, applying defaults for
// anything unset, and validates the result. Call LoadEnvFile first to seed
// process env from a file.
func Load() (*Config, error) {
	c := &Config{
		BaseDir:              getEnv("MEDIACAT_BASE_DIR", "/data/media"),
		CacheDir:             getEnv("MEDIACAT_CACHE_DIR", "/var/cache/mediacat"),
		LeaderPath:           os.Getenv("MEDIACAT_LEADER_PATH"),
		ValidateWorkers:      getEnvInt("MEDIACAT_VALIDATE_WORKERS", 0),
		LightWorkers:         getEnvInt("MEDIACAT_LIGHT_WORKERS", 0),
		BackgroundWorkers:    getEnvInt("MEDIACAT_BACKGROUND_WORKERS", 0),
		EnqueueRateLimit:     getEnvFloat("MEDIACAT_ENQUEUE_RATE_LIMIT", 0),
		HashIndexDir:         getEnv("MEDIACAT_HASH_INDEX_DIR", "./hashindex"),
		HashIndexFlushMin:    getEnvDuration("MEDIACAT_HASH_INDEX_FLUSH_MIN", 30*time.Second),
		HashIndexFlushBudget: getEnvFloat("MEDIACAT_HASH_INDEX_FLUSH_BUDGET", 0.1),
		ConsumerGroup:        getEnv("MEDIACAT_CONSUMER_GROUP", "mediacat"),
		ConsumerName:         getEnv("MEDIACAT_CONSUMER_NAME", hostnameOrDefault("mediacat-0")),
		PendingIdle:          getEnvDuration("MEDIACAT_PENDING_IDLE", 30*time.Second),
		BackoffBase:          getEnvDuration("MEDIACAT_BACKOFF_BASE", 5*time.Second),
		BackoffMaxMult:       getEnvInt("MEDIACAT_BACKOFF_MAX_MULT", 6),
		LeaderWaitLimit:      getEnvDuration("MEDIACAT_LEADER_WAIT_LIMIT", 30*time.Second),
		MetaKVPath:           getEnv("MEDIACAT_METAKV_PATH", "./metakv.sqlite"),
		HTTPAddr:             getEnv("MEDIACAT_HTTP_ADDR", ":8085"),
		FuseMountPoint:       os.Getenv("MEDIACAT_FUSE_MOUNT"),
		FuseAllowOther:       getEnvBool("MEDIACAT_FUSE_ALLOW_OTHER", false),
		SidecarFormats:       getEnvList("MEDIACAT_SIDECAR_FORMATS", []string{"meta", "nfo"}),
	}
	if c.LeaderPath == "" {
		c.LeaderPath = strings.TrimSuffix(c.BaseDir, "/") + "/locks/kv-leader.info"
	}
	if c.ValidateWorkers <= 0 {
		c.ValidateWorkers = 2 * runtime.NumCPU()
	}
	if c.LightWorkers <= 0 {
		c.LightWorkers = runtime.NumCPU()
	}
	if c.BackgroundWorkers <= 0 {
		c.BackgroundWorkers = maxInt(1, runtime.NumCPU()/2)
	}
	if c.BackoffMaxMult <= 0 {
		c.BackoffMaxMult = 6
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns InvalidConfig for any field that would leave the
// orchestrator unable to start correctly.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return &errs.InvalidConfig{Field: "BaseDir", Reason: "must not be empty"}
	}
	if c.ValidateWorkers <= 0 || c.LightWorkers <= 0 || c.BackgroundWorkers <= 0 {
		return &errs.InvalidConfig{Field: "Workers", Reason: "all stage worker counts must be positive"}
	}
	if c.BackoffBase <= 0 {
		return &errs.InvalidConfig{Field: "BackoffBase", Reason: "must be positive"}
	}
	if c.PendingIdle <= 0 {
		return &errs.InvalidConfig{Field: "PendingIdle", Reason: "must be positive"}
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func hostnameOrDefault(def string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return def
	}
	return h
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
