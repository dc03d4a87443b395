package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr             string
	LogLevel         string
	LogConsole       bool
	LogSampleN       int
	CacheMaxBytes    int
	CacheMaxAge      time.Duration
	FetchTimeout     time.Duration
	FetchMaxBody     int64
	ValidationSample int
	MetricsEnabled   bool
	Invalidation     InvalidationCfg
}

func FromEnv() Config {
	maxBytes := getint("CACHE_MAX_BYTES", 50<<20)
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	sample := getint("VALIDATION_SAMPLE", 5)
	if sample <= 0 {
		sample = 5
	}
	maxBody := getint64("FETCH_MAX_BODY", 256<<20)
	if maxBody <= 0 {
		maxBody = 256 << 20
	}
	// 0 disables the client timeout; request context still applies
	timeout := getduration("FETCH_TIMEOUT", 60*time.Second)
	if timeout < 0 {
		timeout = 0
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		CacheMaxBytes:    maxBytes,
		CacheMaxAge:      getduration("CACHE_MAX_AGE", 30*time.Minute),
		FetchTimeout:     timeout,
		FetchMaxBody:     maxBody,
		ValidationSample: sample,
		MetricsEnabled:   getbool("METRICS_ENABLED", true),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "layer-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "layer-ingest"),
		},
	}
}

// BrokerList splits a comma-separated broker list, dropping blanks.
func (c InvalidationCfg) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
