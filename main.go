package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/config"
	"github.com/cppla/lifesignal/controllers"
	"github.com/cppla/lifesignal/routes"
	"github.com/cppla/lifesignal/services"
	"github.com/cppla/lifesignal/trigger"
	"github.com/cppla/lifesignal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "lifesignal",
		Short:        "Daily wellness check-ins with escalation to family contacts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the JSON config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newTickCmd(&configPath),
		newTriggerCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}

// setup loads config and builds the logger shared by every command.
func setup(configPath string) (config.AppConfig, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := utils.NewLogger(cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (tick endpoints, webhooks, owner API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cfg, logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer a.close()

			r := routes.SetupRouter(cfg, logger, routes.Handlers{
				Cron:     controllers.NewCronController(a.scheduler, a.escalations, a.lease, logger.Named("cron")),
				Twilio:   controllers.NewTwilioController(a.collector, cfg.VoiceCallbackURL(), logger.Named("webhook")),
				Checkins: controllers.NewCheckinController(a.scheduler, a.store, logger),
				Health:   controllers.NewHealthController(a.db, cfg),
				Metrics:  promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			})

			logger.Info("starting server", zap.String("port", cfg.AppPort))
			if err := utils.GraceServer(":"+cfg.AppPort, r, logger); err != nil {
				logger.Error("server stopped with error", zap.Error(err))
				return err
			}
			return nil
		},
	}
}

func newTickCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "tick checkins|escalations",
		Short:     "Run a single tick in-process and print the report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"checkins", "escalations"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			runner := controllers.TickRunner(a.scheduler)
			if args[0] == "escalations" {
				runner = a.escalations
			}
			release, ok := a.lease.Acquire(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("%s tick already in progress", args[0])
			}
			defer release()

			report, err := runner.RunTick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: evaluated=%d ok=%d skipped=%d error=%d\n",
				report.Job, report.Evaluated,
				report.Count(services.OutcomeOK), report.Count(services.OutcomeSkipped), report.Count(services.OutcomeError))
			return nil
		},
	}
}

func newTriggerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Call the tick endpoints on their cron schedules until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runner, err := trigger.New(trigger.Config{
				BaseURL:         cfg.TriggerBaseURL,
				Token:           cfg.CronSecretToken,
				CheckinsSpec:    cfg.TriggerCheckinsSpec,
				EscalationsSpec: cfg.TriggerEscalationsSpec,
			}, logger.Named("trigger"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			runner.Start()
			logger.Info("trigger running", zap.String("base_url", cfg.TriggerBaseURL))
			<-ctx.Done()
			<-runner.Stop().Done()
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Sign an owner API token with the configured JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := utils.GenerateToken(cfg.JWTSecret, args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
