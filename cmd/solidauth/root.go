package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/trompamusic/solidauth/auth"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/internal/config"
	"github.com/trompamusic/solidauth/internal/web"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "solidauth",
		Short:         "Solid-OIDC relying party service and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newCreateKeyCmd(),
		newGetProviderConfigurationCmd(),
		newRegisterCmd(),
		newAuthRequestCmd(),
		newExchangeAuthCmd(),
		newExchangeAuthURLCmd(),
		newRefreshCmd(),
		newListTokensCmd(),
		newInitDBCmd(),
	)
	return root
}

// runtime holds everything a command needs: configuration, the
// storage backend and the auth service built on it.
type runtime struct {
	cfg     *config.Config
	logger  hclog.Logger
	backend backend.Backend
	svc     *auth.Service
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger("solidauth")
	b, err := cfg.NewBackend(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := auth.NewService(b,
		auth.WithLogger(logger),
		auth.WithClientName(cfg.ClientName),
	)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, backend: b, svc: svc}, nil
}

// clientIDDocumentURL returns the client id document URL for a
// provider when the configuration forces URL-based client ids, or ""
// when dynamic registration should be used.
func (rt *runtime) clientIDDocumentURL(issuer string) string {
	if !rt.cfg.AlwaysUseClientURL || issuer == "" {
		return ""
	}
	return web.ClientURLForIssuer(rt.cfg.BaseURL, issuer)
}

func (rt *runtime) requireWebConfig() error {
	if err := rt.cfg.ValidateWeb(); err != nil {
		return fmt.Errorf("incomplete configuration: %w", err)
	}
	return nil
}
