package main

import (
	"io"
	"log/slog"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

// newLogger returns a slog logger backed by charmbracelet/log. Format "auto"
// writes text to terminals and JSON everywhere else.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           charmlog.Level(level),
	}
	if useJSON(w, format) {
		opts.Formatter = charmlog.JSONFormatter
	}
	return slog.New(charmlog.NewWithOptions(w, opts))
}

func useJSON(w io.Writer, format string) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	return !ok || !term.IsTerminal(int(f.Fd()))
}
