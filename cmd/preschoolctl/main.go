package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/repository"
	"github.com/noah-isme/preschool-homework-api/internal/service"
	"github.com/noah-isme/preschool-homework-api/pkg/config"
	"github.com/noah-isme/preschool-homework-api/pkg/database"
	"github.com/noah-isme/preschool-homework-api/pkg/logger"
)

var dryRun bool

// rootCmd is the maintenance CLI entrypoint.
var rootCmd = &cobra.Command{
	Use:   "preschoolctl",
	Short: "Maintenance tasks for the preschool homework database",
	Long: `preschoolctl runs one-off maintenance against the same database as the API server.

Available commands:
  migrate-legacy           - copy rows from the legacy homeworks/submissions tables
  repair-homework-classes  - fill homework rows that are missing a class
  normalize-class-names    - map drifted class names to canonical classes
  issue-token              - mint a development access token`,
	SilenceUsage: true,
}

func init() {
	for _, cmd := range []*cobra.Command{migrateLegacyCmd, repairClassesCmd, normalizeClassNamesCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing them")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(issueTokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// env bundles what every database command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.logger.Sync()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &env{cfg: cfg, logger: logr, db: db}, nil
}

func (e *env) maintenance() *service.MaintenanceService {
	return service.NewMaintenanceService(
		repository.NewHomeworkRepository(e.db),
		repository.NewStaffRepository(e.db),
		repository.NewClassRepository(e.db),
		repository.NewLegacyRepository(e.db),
		e.logger,
	)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
