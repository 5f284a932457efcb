package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sonicspectrum/msghub/internal/app"
	"github.com/sonicspectrum/msghub/internal/auth"
	"github.com/sonicspectrum/msghub/internal/config"
	applog "github.com/sonicspectrum/msghub/internal/log"
	"github.com/sonicspectrum/msghub/internal/utils"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "msghub",
		Short:         "Real-time direct messaging hub",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := serveCmd()
	rootCmd.RunE = serve.RunE
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(serve, userCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies file and env configuration, then flag overrides.
func loadConfig(overrides config.Config) (config.Config, error) {
	bootLogger := applog.New("info", "console")
	cfg, path, err := config.Load(bootLogger, configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			logger := applog.New(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Str("broadcast_scope", cfg.BroadcastScope).Msg("starting msghub")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&overrides.DatabaseDriver, "db-driver", "", "message store: sqlite, postgres or redis")
	flags.StringVar(&overrides.BroadcastScope, "broadcast-scope", "", "broadcast scope: all or conversation")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage messaging users",
	}

	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user that can send and receive messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			if id == "" {
				id = utils.NewID()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st, err := app.OpenStore(ctx, &cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := st.CreateUser(ctx, id, name)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (random UUID if empty)")
	add.Flags().StringVar(&name, "name", "", "username")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}

			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      ttl,
			}, userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "username claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
