package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skillup/internal/config"
	"skillup/internal/logger"
	"skillup/internal/repo"
	"skillup/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	grace      time.Duration
	limit      int
	parallel   int
	rebuild    bool
)

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair derived SkillUp state",
	Long: `Recompute user totals, plan counters, active plan sets and the cached
leaderboard from task rows, which are the source of truth.

Without a subcommand, every user with an unsettled ledger event is repaired.`,
	SilenceUsage: true,
	RunE:         runUnsettled,
}

var userCmd = &cobra.Command{
	Use:   "user <user_id>",
	Short: "Reconcile a single user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUser,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rebuild the cached leaderboard from user scores",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().DurationVar(&grace, "grace", 5*time.Minute, "ignore ledger events younger than this")
	rootCmd.Flags().IntVar(&limit, "limit", 1000, "max ledger events scanned per run")
	rootCmd.Flags().IntVar(&parallel, "parallel", 4, "users reconciled concurrently")
	rootCmd.PersistentFlags().BoolVar(&rebuild, "rebuild-leaderboard", false, "also rebuild the leaderboard afterwards")

	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newService() (*service.ReconcileService, error) {
	cfg := config.Load(configFile)
	logger.Init("skillup-reconcile", cfg.Log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := cfg.OpenGormDB()
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	stores := repo.New(db)
	return service.NewReconcileService(stores, service.NewScoreboardService(stores, cfg.Rules())), nil
}

func runUnsettled(cmd *cobra.Command, _ []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	n, err := svc.ReconcileUnsettled(cmd.Context(), grace, limit, parallel)
	if err != nil {
		return err
	}
	logger.Info("reconcile.unsettled.ok", "users", n)
	return finish(cmd.Context(), svc)
}

func runUser(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	report, err := svc.Reconcile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *report)
	return finish(cmd.Context(), svc)
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	rebuild = true
	return finish(cmd.Context(), svc)
}

func finish(ctx context.Context, svc *service.ReconcileService) error {
	if rebuild {
		if _, err := svc.RebuildLeaderboard(ctx); err != nil {
			return fmt.Errorf("rebuild leaderboard: %w", err)
		}
	}
	return nil
}
