package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trompamusic/solidauth/internal/web"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			if err := rt.requireWebConfig(); err != nil {
				return err
			}

			// Make sure a signing key exists before taking traffic. A
			// backend that isn't ready (an uninitialized database) is
			// only a warning so the health endpoint can report it.
			ready, err := rt.backend.Ready(ctx)
			if err != nil || !ready {
				rt.logger.Warn("backend is not ready", "err", err)
			} else {
				if _, err := rt.svc.EnsureRelyingPartyKeys(ctx); err != nil {
					return err
				}
			}

			srv, err := web.NewServer(rt.cfg, rt.backend, rt.svc, rt.logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
