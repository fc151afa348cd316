// Package logging builds the process-wide structured logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console-writer zerolog.Logger for local/dev readability.
// Swap ConsoleWriter for the bare json encoder in production if desired.
func New() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	return zerolog.New(out).With().Timestamp().Logger()
}
