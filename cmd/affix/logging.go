package main

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/sagarc03/affix/config"
)

// setupLogging installs the process logger and routes the standard log
// package through it.
func setupLogging(cfg *config.Config) {
	logger := newLogger(os.Stderr, cfg.IsProduction(), cfg.Log.Level)
	slog.SetDefault(logger)

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(logger.Handler(), slog.LevelInfo).Writer())
}

// newLogger writes JSON with a UTC "ts" field in production and colored
// text otherwise. An empty level means info in production and debug
// elsewhere.
func newLogger(w io.Writer, prod bool, level string) *slog.Logger {
	if level == "" {
		level = "debug"
		if prod {
			level = "info"
		}
	}
	lvl := parseLevel(level)

	if prod {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: utcTimestamp,
		}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		AddSource:  lvl == slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		NoColor:    w != os.Stderr,
	}))
}

func utcTimestamp(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
	}
	return a
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
