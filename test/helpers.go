package test

import (
	"io"
	"log/slog"
)

// testLogger discards every log line; integration tests assert on the
// wire protocol, not on log output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
