// Package bflog provides categorized structured logging for bfuzz,
// built on go.uber.org/zap. Each category (search, bandit, solver,
// generator, csv) gets its own named *zap.SugaredLogger drawn from one
// process-wide *zap.Logger, mirroring the teacher's per-category logger
// idiom but backed by zap instead of the standard library's log package.
package bflog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names the subsystem a logger belongs to.
type Category string

const (
	CategorySearch    Category = "search"
	CategoryBandit    Category = "bandit"
	CategorySolver    Category = "solver"
	CategoryGenerator Category = "generator"
	CategoryCSV       Category = "csv"
)

var allCategories = []Category{CategorySearch, CategoryBandit, CategorySolver, CategoryGenerator, CategoryCSV}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Init builds the process-wide base logger. jsonLogs selects a
// JSON-encoded production config (set when fuzzer.options contains
// "json_logs"); otherwise a human-readable console encoder is used.
func Init(jsonLogs bool) error {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if jsonLogs {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("bflog: build logger: %w", err)
	}
	base = l
	loggers = make(map[Category]*zap.SugaredLogger, len(allCategories))
	for _, c := range allCategories {
		loggers[c] = base.Sugar().Named(string(c))
	}
	return nil
}

// For returns the named logger for category. Init must have been called
// first; if it wasn't, For falls back to a no-op logger so callers never
// need a nil check.
func For(c Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	return zap.NewNop().Sugar().Named(string(c))
}

// SetRunID tags every subsequent log entry from every category with the
// given run correlation id, so a run's CSV and log lines can be joined
// on it. Init must have been called first.
func SetRunID(runID string) {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		return
	}
	for _, c := range allCategories {
		loggers[c] = base.Sugar().Named(string(c)).With("run", runID)
	}
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	mu.RLock()
	b := base
	mu.RUnlock()
	if b == nil {
		return nil
	}
	return b.Sync()
}
