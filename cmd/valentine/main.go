package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"valentine/internal/app"
	"valentine/internal/config"
	"valentine/internal/flow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	logLevel string
	apiURL   string
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "valentine",
		Short:         "A puzzle-hunt valentine delivered from Saturn",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.apiURL, "api", "", "backend API base URL")

	root.AddCommand(newServeCmd(&flags))
	root.AddCommand(newPlayCmd(&flags))
	root.AddCommand(newAdminCmd(&flags))
	return root
}

// loadConfig reads the environment and applies flag overrides before
// validation.
func loadConfig(flags *globalFlags, override func(*config.Config)) (config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.apiURL != "" {
		cfg.Client.APIURL = flags.apiURL
	}
	if override != nil {
		override(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := app.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr, catalog string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags, func(c *config.Config) {
				if addr != "" {
					c.Addr = addr
				}
				if catalog != "" {
					c.CatalogPath = catalog
				}
			})
			if err != nil {
				return err
			}
			srv, err := app.NewServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&catalog, "catalog", "", "puzzle catalog YAML")
	return cmd
}

func newPlayCmd(flags *globalFlags) *cobra.Command {
	var theme string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Open the valentine in this terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}
			out, err := app.Play(cmd.Context(), cfg, app.PlayOptions{
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Theme:  theme,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			if out == flow.OutcomeEntry {
				return errors.New("session is gone; run play again to start over")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "", "color theme: saturn or plain")
	return cmd
}

func newAdminCmd(flags *globalFlags) *cobra.Command {
	var password string
	admin := &cobra.Command{Use: "admin", Short: "Monitor sessions and approve challenges"}
	admin.PersistentFlags().StringVar(&password, "password", "", "admin password (defaults to VALENTINE_ADMIN_PASSWORD)")

	operator := func(cmd *cobra.Command) (*app.Operator, error) {
		cfg, logger, err := loadConfig(flags, nil)
		if err != nil {
			return nil, err
		}
		pw := password
		if pw == "" {
			pw = cfg.AdminPassword
		}
		return app.NewOperator(cmd.Context(), cfg, pw, cmd.OutOrStdout(), logger)
	}

	admin.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Check the admin password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := operator(cmd); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List all sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := operator(cmd)
			if err != nil {
				return err
			}
			return op.ListSessions(cmd.Context())
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operator(cmd)
			if err != nil {
				return err
			}
			return op.ShowSession(cmd.Context(), args[0])
		},
	})
	admin.AddCommand(&cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve a pending push-up challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operator(cmd)
			if err != nil {
				return err
			}
			op.Approve(cmd.Context(), args[0])
			return nil
		},
	})

	var autoApprove bool
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the session list every few seconds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			op, err := operator(cmd)
			if err != nil {
				return err
			}
			return op.Watch(cmd.Context(), autoApprove)
		},
	}
	watch.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve pending challenges as they arrive")
	admin.AddCommand(watch)
	return admin
}
