package logger

import (
	"log"
	"log/slog"
)

// New returns a stdlib logger that forwards every line to base at level,
// tagged with the component attribute. Libraries that only accept a
// *log.Logger or a Printf-style logger (cron, net/http) log through it.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.New(slog.DiscardHandler)
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}
