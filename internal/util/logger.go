package util

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

var logger *log.Logger

var prefixStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#FFFFFF")).
	Background(lipgloss.Color("#E8486A")).
	Bold(true).
	Padding(0, 1).
	MarginRight(1)

// InitLogger sends log output to stderr. Call it after SetDebugMode.
func InitLogger() {
	InitLoggerTo(os.Stderr)
}

// InitLoggerTo sends log output to w. Debug mode adds the debug level,
// timestamps and the calling site.
func InitLoggerTo(w io.Writer) {
	level := log.InfoLevel
	if IsDebug {
		level = log.DebugLevel
	}

	logger = log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          prefixStyle.Render("Nartya"),
		ReportCaller:    IsDebug,
		ReportTimestamp: IsDebug,
		TimeFormat:      "15:04:05",
	})
	logger.SetColorProfile(termenv.TrueColor)
}

// Debug logs msg with key/value pairs when debug mode is on.
func Debug(msg string, keyvals ...any) {
	if IsDebug && logger != nil {
		logger.Helper()
		logger.Debug(msg, keyvals...)
	}
}

// Info logs msg with key/value pairs.
func Info(msg string, keyvals ...any) {
	if logger != nil {
		logger.Helper()
		logger.Info(msg, keyvals...)
	}
}

// Warn logs msg with key/value pairs.
func Warn(msg string, keyvals ...any) {
	if logger != nil {
		logger.Helper()
		logger.Warn(msg, keyvals...)
	}
}
