package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultHistorySize = 1000

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	global      *slog.LevelVar
	history     *RingBuffer
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
		global:  &slog.LevelVar{},
		history: NewRingBuffer(defaultHistorySize),
	}
}

// Initialize applies config to every existing and future module logger and
// installs the default slog logger.
func Initialize(config Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.config = config
	reg.initialized = true
	reg.global.Set(levelOr(config.Level, slog.LevelInfo))

	// Loggers handed out earlier share their LevelVar with the replacement,
	// so they observe the configured level but keep the stdout-only chain.
	for module, lv := range reg.levels {
		lv.Set(reg.moduleLevel(module))
		reg.loggers[module] = slog.New(reg.handler(lv)).With("module", module)
	}

	slog.SetDefault(slog.New(reg.handler(reg.global)))
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	logger, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return logger
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if logger, ok := reg.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(reg.moduleLevel(module))
	logger = slog.New(reg.handler(lv)).With("module", module)
	reg.loggers[module] = logger
	reg.levels[module] = lv
	return logger
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the global level and every module without an override.
func SetLevel(module, level string) error {
	parsed := parseLevel(level)
	if parsed == nil {
		return fmt.Errorf("unknown log level %q", level)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if module == "" {
		reg.config.Level = level
		reg.global.Set(*parsed)
		for m, lv := range reg.levels {
			if _, override := reg.config.Modules[m]; !override {
				lv.Set(*parsed)
			}
		}
		return nil
	}

	if reg.config.Modules == nil {
		reg.config.Modules = make(map[string]string)
	}
	reg.config.Modules[module] = level
	if lv, ok := reg.levels[module]; ok {
		lv.Set(*parsed)
	}
	return nil
}

// Levels returns the effective level of every known module, including
// modules that have an override but no logger yet.
func Levels() map[string]string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make(map[string]string, len(reg.levels)+len(reg.config.Modules))
	for m := range reg.config.Modules {
		out[m] = strings.ToLower(reg.moduleLevel(m).String())
	}
	for m, lv := range reg.levels {
		out[m] = strings.ToLower(lv.Level().String())
	}
	return out
}

// Modules returns the names of all modules that have requested a logger.
func Modules() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.loggers))
	for m := range reg.loggers {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// History returns the in-memory log history.
func History() *RingBuffer {
	return reg.history
}

// moduleLevel requires reg.mu.
func (r *registry) moduleLevel(module string) slog.Level {
	level := levelOr(r.config.Level, slog.LevelInfo)
	if s, ok := r.config.Modules[module]; ok {
		level = levelOr(s, level)
	}
	return level
}

// handler builds the output chain for one level source. Before Initialize
// only text on stdout is used.
func (r *registry) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if r.config.Format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}
	if !r.initialized {
		return stdout
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewHistoryHandler(r.history, level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l := parseLevel(s); l != nil {
		return *l
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
