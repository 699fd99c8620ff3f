// Command boardhub-sweep runs one deadline sweep against the configured
// store and exits. It is meant for cron or a Kubernetes CronJob when the
// server's in-process scheduler is disabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dalemusser/boardhub/internal/app/bootstrap"
	"github.com/dalemusser/boardhub/internal/app/system/hooktoken"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

const (
	programName    = "boardhub-sweep"
	defaultEnvFile = ".env"
)

var globalFlags = struct {
	debug   bool
	envFile string
}{}

func newLogger() (*zap.Logger, error) {
	if globalFlags.debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Complete and notify every voting item whose deadline has passed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSweep,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.envFile, "env-file", defaultEnvFile, "dotenv file to load before reading BOARDHUB_* variables")

	rootCmd.AddCommand(dueCommand())
	rootCmd.AddCommand(tokenCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

// session is a connected store plus the services built on it.
type session struct {
	logger *zap.Logger
	appCfg bootstrap.AppConfig
	deps   bootstrap.DBDeps
}

func open(ctx context.Context) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	cfg, err := loadConfig(globalFlags.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	appCfg := cfg.appConfig()
	coreCfg := &config.CoreConfig{}
	if err := bootstrap.ValidateConfig(coreCfg, appCfg, logger); err != nil {
		return nil, err
	}
	timeouts.Configure(timeouts.Config{Delivery: appCfg.DeliveryTimeout})

	deps, err := bootstrap.ConnectDB(ctx, coreCfg, appCfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{logger: logger, appCfg: appCfg, deps: deps}, nil
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Medium())
	defer cancel()
	if err := bootstrap.Shutdown(ctx, nil, s.appCfg, s.deps, s.logger); err != nil {
		s.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	svc, err := bootstrap.NewServices(ctx, s.appCfg, s.deps, s.logger)
	if err != nil {
		return err
	}
	*s.deps.Services = *svc

	sweepCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Sweep(), s.logger, "deadline sweep")
	defer cancel()

	report, err := svc.Pipeline.Sweep(sweepCtx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "examined=%d completed=%d redelivered=%d notified=%d errors=%d\n",
		report.Examined, report.Completed, report.Redelivered, report.Notified, len(report.Errors))
	for _, ie := range report.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", ie.Error())
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%d items failed", len(report.Errors))
	}
	return nil
}

func dueCommand() *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List voting items whose deadline has passed without changing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			ctx, cancel := timeouts.WithTimeout(cmd.Context(), timeouts.Medium(), s.logger, "list due items")
			defer cancel()

			items, err := s.deps.Votes.ListDueForSweep(ctx, time.Now(), limit)
			if err != nil {
				return err
			}
			for _, it := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d/%d\n",
					it.Type, it.ID, it.VotingDeadline.UTC().Format(time.RFC3339),
					it.VotesCast, it.TotalEligibleVoters)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 100, "maximum items to list")
	return cmd
}

func tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the completion webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(globalFlags.envFile)
			if err != nil {
				return err
			}
			tok, err := hooktoken.New(cfg.WebhookSecret).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "scheduler", "caller name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
