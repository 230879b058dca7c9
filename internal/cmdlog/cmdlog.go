package cmdlog

import (
	"time"

	"anirec/internal/logging"
	"anirec/internal/metrics"
)

// Run executes a CLI command body, counting and logging its outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error().Str("command", cmd).Err(err).Msg("command failed")
	} else {
		logging.Info().Str("command", cmd).Dur("took", time.Since(start)).Msg("command ok")
	}
	return err
}
