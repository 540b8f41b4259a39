package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/trompamusic/solidauth/backend/dbbackend"
	"github.com/trompamusic/solidauth/internal/config"
)

func newCreateKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-key",
		Short: "Create the relying party's signing key if one doesn't exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			existing, err := rt.backend.GetRelyingPartyKeys(cmd.Context())
			if err != nil {
				return err
			}
			if existing != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "A key already exists, not generating another")
				return nil
			}
			if _, err := rt.svc.EnsureRelyingPartyKeys(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Generated and saved a new key")
			return nil
		},
	}
}

func newGetProviderConfigurationCmd() *cobra.Command {
	var fromProfile bool
	cmd := &cobra.Command{
		Use:   "get-provider-configuration <provider>",
		Short: "Fetch and store a provider's discovery document and keys",
		Long: `Fetch and store a provider's discovery document and JWKS.
With --from-profile the argument is a user's WebID and the provider is
looked up from their profile document.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			provider := args[0]
			if fromProfile {
				provider, err = rt.svc.ResolveProvider(ctx, args[0])
				if err != nil || provider == "" {
					return fmt.Errorf("cannot find a provider for %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Provider for this user is: %s\n", provider)
			}
			provider, _, _, err = rt.svc.EnsureProviderConfiguration(ctx, provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration and keys for %s\n", provider)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromProfile, "from-profile", false, "argument is a WebID, look up its provider")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <provider>",
		Short: "Register this client with a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			provider, providerCfg, _, err := rt.svc.EnsureProviderConfiguration(ctx, args[0])
			if err != nil {
				return err
			}
			if docURL := rt.clientIDDocumentURL(provider); docURL != "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Configured to use a client id document, no registration needed")
				fmt.Fprintf(cmd.OutOrStdout(), "client_id %s\n", docURL)
				return nil
			}
			reg, err := rt.svc.EnsureRegistration(ctx, provider, providerCfg, rt.cfg.RedirectURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client_id %s\n", reg.ClientID)
			return nil
		},
	}
}

func newAuthRequestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-request <webid-or-provider>",
		Short: "Generate an authorization URL for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			provider, err := rt.svc.ResolveProvider(ctx, args[0])
			if err != nil || provider == "" {
				return fmt.Errorf("cannot find a provider for %s: %w", args[0], err)
			}
			flow, err := rt.svc.StartAuthFlow(ctx, provider, rt.cfg.RedirectURL, rt.clientIDDocumentURL(provider))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client ID is %s\n", flow.ClientID)
			fmt.Fprintln(cmd.OutOrStdout(), flow.AuthURL)
			return nil
		},
	}
}

func exchangeAuth(ctx context.Context, cmd *cobra.Command, rt *runtime, code, state, provider string) error {
	// The client id decision has to match the one made for the auth
	// request. The issuer stored with the state covers providers that
	// don't send an iss parameter in the callback.
	if provider == "" {
		sd, err := rt.backend.GetStateData(ctx, state)
		if err != nil {
			return err
		}
		if sd != nil {
			provider = sd.Issuer
			fmt.Fprintf(cmd.OutOrStdout(), "No provider given, using issuer from state: %s\n", provider)
		}
	}
	result, err := rt.svc.HandleCallback(ctx, code, state, provider, rt.cfg.RedirectURL, rt.clientIDDocumentURL(provider))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Validated ID token and saved a token for %s at %s\n", result.WebID, result.Issuer)
	return nil
}

func newExchangeAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange-auth <code> <state> [provider]",
		Short: "Exchange an authorization code for a token",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			provider := ""
			if len(args) == 3 {
				provider = args[2]
			}
			return exchangeAuth(cmd.Context(), cmd, rt, args[0], args[1], provider)
		},
	}
}

func newExchangeAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange-auth-url <url>",
		Short: "Exchange a full callback URL for a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			parsed, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid callback url: %w", err)
			}
			query := parsed.Query()
			code, state := query.Get("code"), query.Get("state")
			if code == "" || state == "" {
				return fmt.Errorf("missing code or state in query string")
			}
			return exchangeAuth(cmd.Context(), cmd, rt, code, state, query.Get("iss"))
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <profile>",
		Short: "Refresh the stored token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			profile := args[0]
			provider, err := rt.svc.ResolveProvider(ctx, profile)
			if err != nil || provider == "" {
				return fmt.Errorf("cannot find a provider for %s: %w", profile, err)
			}
			token, err := rt.svc.Refresh(ctx, provider, profile, rt.clientIDDocumentURL(provider))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed token for %s, expires in %ds\n", profile, token.ExpiresIn)
			return nil
		},
	}
}

func newListTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-tokens",
		Short: "List every stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			tokens, err := rt.svc.ListTokens(cmd.Context())
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens stored")
				return nil
			}
			for _, t := range tokens {
				status := "valid"
				if t.HasExpired() {
					status = "expired"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tadded %s\t%s\n",
					t.Issuer, t.Profile, t.ClientID, t.Added.Format("2006-01-02 15:04:05"), status)
			}
			return nil
		},
	}
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if rt.cfg.Backend != config.BackendDB {
				return fmt.Errorf("init-db requires CONFIG_BACKEND=db, got %q", rt.cfg.Backend)
			}
			db, ok := rt.backend.(*dbbackend.Backend)
			if !ok {
				return fmt.Errorf("backend is not a database backend")
			}
			if err := db.InitSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created database tables")
			return nil
		},
	}
}
