package broadphase

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

/// NewLogger builds the logger used by a World. Pass it in WorldDef.Logger to
/// share one sink between several worlds.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix: "broadphase",
		Level:  level,
	})
}

func defaultLogger() *log.Logger {
	return NewLogger(os.Stderr, log.WarnLevel)
}
