package cli

import (
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logLevel parses a level name in slog's notation ("debug", "info+2").
// "warning" is accepted for "warn"; anything else falls back to def.
func logLevel(name string, def slog.Level) slog.Level {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	var l slog.Level
	if name == "" || l.UnmarshalText([]byte(name)) != nil {
		return def
	}
	return l
}

// logFile is the rotating file behind the adapter's log. Standard output
// carries the protocol in stdio mode, so the log never goes there.
func logFile(path string) *lumberjack.Logger {
	if strings.TrimSpace(path) == "" {
		path = defaultLogFilename
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := logLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: verbose, Level: level}))
}

// setupLogging installs the file logger as the process default.
func setupLogging(path string, verbose bool) *slog.Logger {
	logger := newLogger(logFile(path), verbose)
	slog.SetDefault(logger)
	return logger
}
