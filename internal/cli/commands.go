package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"watchpost/internal/app"
	"watchpost/internal/middleware"
	"watchpost/internal/services"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			logger.Info().Str("version", Version).Str("config", opts.configPath).Msg("starting watchpost")

			a, err := app.New(cfg, opts.configPath, logger)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an API client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !middleware.ValidClientName(name) {
				return fmt.Errorf("invalid client name %q: use 1-64 letters, digits, '-', '_' or '.'", name)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			auth, err := services.NewAuthService(cfg.Server.Auth.Secret, cfg.Server.Auth.TokenExpiry)
			if err != nil {
				return err
			}
			token, expires, err := auth.GenerateToken(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "token for %s expires %s\n", name, expires.Format("2006-01-02 15:04 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name embedded in the token")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newNotifyTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message through the configured notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			dispatcher := services.NewDispatcher(app.NewNotifier(cfg.Notifier, logger), cfg.Notifier.Telegram.Timeout, logger)
			if err := dispatcher.Send(cmd.Context(), services.TestNotificationText); err != nil {
				return fmt.Errorf("test notification failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "test notification sent")
			return nil
		},
	}
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate and print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Server.Auth.Secret != "" {
				cfg.Server.Auth.Secret = "<redacted>"
			}
			if cfg.Notifier.Telegram.Token != "" {
				cfg.Notifier.Telegram.Token = "<redacted>"
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
