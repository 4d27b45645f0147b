package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr string

	RedisURL    string
	DatabaseURL string

	SessionTTL     time.Duration
	UndoLimit      int
	HistoryLimit   int
	DefaultLang    string
	NotationDir    string
	PersistQueue   int
	PersistTimeout time.Duration
	ShutdownGrace  time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:       ":8080",
		SessionTTL:     7 * 24 * time.Hour,
		HistoryLimit:   20,
		DefaultLang:    "en",
		PersistQueue:   64,
		PersistTimeout: 2 * time.Second,
		ShutdownGrace:  10 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("TYPIST_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.NotationDir = strings.TrimSpace(os.Getenv("TYPIST_NOTATION_DIR"))

	if n, ok := positiveInt("TYPIST_SESSION_TTL"); ok { // seconds
		cfg.SessionTTL = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("TYPIST_UNDO_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.UndoLimit = n
		}
	}
	if n, ok := positiveInt("TYPIST_HISTORY_LIMIT"); ok {
		cfg.HistoryLimit = n
	}
	if n, ok := positiveInt("TYPIST_PERSIST_QUEUE"); ok {
		cfg.PersistQueue = n
	}
	if n, ok := positiveInt("TYPIST_PERSIST_TIMEOUT_MS"); ok {
		cfg.PersistTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := positiveInt("TYPIST_SHUTDOWN_GRACE_SEC"); ok {
		cfg.ShutdownGrace = time.Duration(n) * time.Second
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("TYPIST_DEFAULT_LANG"))); v != "" {
		cfg.DefaultLang = v
	}

	if cfg.PersistTimeout > cfg.ShutdownGrace {
		return nil, errors.New("TYPIST_PERSIST_TIMEOUT_MS must not exceed the shutdown grace period")
	}
	return cfg, nil
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
