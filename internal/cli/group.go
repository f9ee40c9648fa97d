package cli

import (
	"context"
	"errors"
	"syscall"

	"github.com/oklog/run"

	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/policy"
)

// serve runs main alongside a denylist watcher and a signal handler. The
// first actor to return stops the others. A signal is a clean shutdown.
func serve(ctx context.Context, engine *policy.Engine, main func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group

	mainCtx, mainCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return main(mainCtx)
	}, func(error) {
		mainCancel()
	})

	log := componentLogger("denylist")
	w, err := denylist.NewWatcher(flagDenylist, log, engine.SetDenylist)
	if err != nil {
		log.Warn().Err(err).Msg("denylist hot reload disabled")
	} else {
		watchCtx, watchCancel := context.WithCancel(ctx)
		g.Add(func() error {
			return w.Run(watchCtx)
		}, func(error) {
			watchCancel()
		})
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}
