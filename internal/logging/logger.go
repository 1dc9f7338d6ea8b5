// Package logging provides categorized file-based logging for orderscout.
// Each category writes to its own dated file under <dir>/logs. Logging is
// a silent no-op until Initialize enables it, so library code can log
// unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category names one subsystem's log stream.
type Category string

const (
	CategoryBoot       Category = "boot"       // startup, config load
	CategoryPool       Category = "pool"       // browser pool lifecycle
	CategorySession    Category = "session"    // session registry, cookies
	CategoryLogin      Category = "login"      // login executor protocol
	CategorySearch     Category = "search"     // search executor protocol
	CategoryExtract    Category = "extract"    // extraction and ranking
	CategoryCache      Category = "cache"      // result cache
	CategoryQueue      Category = "queue"      // admission queue workers
	CategoryAutoSearch Category = "autosearch" // recurring searches
	CategoryStore      Category = "store"      // seen-set persistence
	CategoryNotify     Category = "notify"     // notification delivery
)

// Settings controls whether and what gets logged. Zero value disables
// everything (production mode).
type Settings struct {
	Enabled    bool
	Level      string          // debug, info, warn, error
	Categories map[string]bool // nil = all categories enabled
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// Logger writes one category's stream.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	settings Settings
	logLevel = levelInfo
)

// Initialize enables logging under dir. Call once at startup; before that
// (or with Enabled=false) every log call is a no-op.
func Initialize(dir string, s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	settings = s
	switch s.Level {
	case "debug":
		logLevel = levelDebug
	case "warn", "warning":
		logLevel = levelWarn
	case "error":
		logLevel = levelError
	default:
		logLevel = levelInfo
	}

	if !s.Enabled {
		return nil
	}

	logsDir = filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	return nil
}

func categoryEnabled(category Category) bool {
	if !settings.Enabled {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for category. Disabled categories
// get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if !categoryEnabled(category) || logsDir == "" {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// CloseAll closes every open log file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > levelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > levelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > levelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// Per-category convenience wrappers, info level unless suffixed.

func Boot(format string, args ...interface{})       { Get(CategoryBoot).Info(format, args...) }
func Pool(format string, args ...interface{})       { Get(CategoryPool).Info(format, args...) }
func Session(format string, args ...interface{})    { Get(CategorySession).Info(format, args...) }
func Login(format string, args ...interface{})      { Get(CategoryLogin).Info(format, args...) }
func Search(format string, args ...interface{})     { Get(CategorySearch).Info(format, args...) }
func Extract(format string, args ...interface{})    { Get(CategoryExtract).Info(format, args...) }
func Cache(format string, args ...interface{})      { Get(CategoryCache).Info(format, args...) }
func Queue(format string, args ...interface{})      { Get(CategoryQueue).Info(format, args...) }
func AutoSearch(format string, args ...interface{}) { Get(CategoryAutoSearch).Info(format, args...) }
func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func Notify(format string, args ...interface{})     { Get(CategoryNotify).Info(format, args...) }

func PoolWarn(format string, args ...interface{})    { Get(CategoryPool).Warn(format, args...) }
func PoolError(format string, args ...interface{})   { Get(CategoryPool).Error(format, args...) }
func LoginWarn(format string, args ...interface{})   { Get(CategoryLogin).Warn(format, args...) }
func LoginError(format string, args ...interface{})  { Get(CategoryLogin).Error(format, args...) }
func SearchWarn(format string, args ...interface{})  { Get(CategorySearch).Warn(format, args...) }
func SearchError(format string, args ...interface{}) { Get(CategorySearch).Error(format, args...) }
func QueueWarn(format string, args ...interface{})   { Get(CategoryQueue).Warn(format, args...) }
func QueueError(format string, args ...interface{})  { Get(CategoryQueue).Error(format, args...) }
func StoreError(format string, args ...interface{})  { Get(CategoryStore).Error(format, args...) }
func NotifyError(format string, args ...interface{}) { Get(CategoryNotify).Error(format, args...) }
