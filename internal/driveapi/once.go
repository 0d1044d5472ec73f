package driveapi

import (
	"log/slog"
	"sync/atomic"
)

// DeliverOnce wraps done so it runs at most once. Later calls are logged and
// dropped; a second delivery is a programming error, not a new outcome.
func DeliverOnce(done func(error), logger *slog.Logger) func(error) {
	if logger == nil {
		logger = slog.Default()
	}

	var fired atomic.Bool

	return func(err error) {
		if !fired.CompareAndSwap(false, true) {
			attrs := []any{}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}

			logger.Warn("discarding duplicate completion", attrs...)

			return
		}

		done(err)
	}
}
