package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that drops all output, keeping test
// logs quiet. Equivalent to log.NewNop from internal/log; use whichever the
// importing package already depends on.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
