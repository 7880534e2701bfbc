package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// OpenFunc acquires a log source. The returned close function is called
// when the engine stops reading from it.
type OpenFunc func(ctx context.Context) (Source, func() error, error)

// Supervise keeps e running against sources from open until ctx is done.
// Failing to open a source, or a source failing mid-stream, is logged and
// retried after restartDelay. Detection state lives in e and survives
// restarts.
func Supervise(ctx context.Context, e *Engine, open OpenFunc, restartDelay time.Duration) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		src, closeSrc, err := open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Int("attempt", attempt).Dur("retry_in", restartDelay).Msg("log source unavailable")
			if !sleep(ctx, restartDelay, nil) {
				return nil
			}
			continue
		}

		log.Info().Int("attempt", attempt).Msg("watching log source")
		runErr := e.Run(ctx, src)
		if closeSrc != nil {
			if err := closeSrc(); err != nil {
				log.Warn().Err(err).Msg("close log source")
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if runErr == nil {
			// Finite source drained; nothing left to supervise.
			return nil
		}

		log.Error().Err(runErr).Dur("retry_in", restartDelay).Msg("watcher stopped, restarting")
		if !sleep(ctx, restartDelay, nil) {
			return nil
		}
	}
}
