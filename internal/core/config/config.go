// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendTiered = "tiered"
)

type CacheCfg struct {
	Backend     string
	RedisAddr   string
	RedisPool   int
	OpTimeout   time.Duration
	TTL         time.Duration
	NegativeTTL time.Duration
	L1Size      int
}

type PlacesCfg struct {
	URL            string
	APIKey         string
	FieldMask      string
	FetchTimeout   time.Duration
	MaxConcurrency int
}

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	H3Res          int
	PopularityFile string
	Cache          CacheCfg
	Places         PlacesCfg
	Events         EventsCfg
	Metrics        MetricsCfg
}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}

	backend := strings.ToLower(getenv("CACHE_BACKEND", BackendRedis))
	switch backend {
	case BackendRedis, BackendMemory, BackendTiered:
	default:
		backend = BackendRedis
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		H3Res:          res,
		PopularityFile: getenv("POPULARITY_FILE", ""),
		Cache: CacheCfg{
			Backend:     backend,
			RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
			RedisPool:   getint("REDIS_POOL_SIZE", 64),
			OpTimeout:   getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
			TTL:         nonNegative(getduration("CACHE_TTL", 0)),
			NegativeTTL: nonNegative(getduration("CACHE_NEGATIVE_TTL", 0)),
			L1Size:      getint("CACHE_L1_SIZE", 1024),
		},
		Places: PlacesCfg{
			URL:            getenv("PLACES_URL", "https://places.googleapis.com/v1/places:searchNearby"),
			APIKey:         getenv("PLACES_API_KEY", ""),
			FieldMask:      getenv("PLACES_FIELD_MASK", ""),
			FetchTimeout:   getduration("FETCH_TIMEOUT", 10*time.Second),
			MaxConcurrency: getint("FETCH_MAX_CONCURRENCY", 8),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("EVENTS_TOPIC", "poi-resolve-events"),
			Queue:   getint("EVENTS_QUEUE", 1024),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// "a:9092, b:9092" -> [a:9092 b:9092]
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
