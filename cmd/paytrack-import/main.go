package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paytrack/internal/config"
	"paytrack/internal/importer"
	"paytrack/internal/repository"
	"paytrack/internal/service"
	"paytrack/internal/validation"
	"paytrack/pkg/database/postgres"
	"paytrack/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

var errRowsFailed = errors.New("some rows were rejected")

type importFlags struct {
	sheet  string
	dryRun bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRowsFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "paytrack-import <file>",
		Short: "Import payments from a CSV or XLSX file",
		Long: `Validate every row of a CSV or XLSX file and store the valid ones.

Rows that fail validation are reported with their line number and skipped.
The exit status is 1 when any row was rejected.

Examples:
  paytrack-import payments.csv --dry-run
  paytrack-import payments.xlsx --sheet March`,
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.sheet, "sheet", "s", "", "XLSX worksheet to read (first sheet by default)")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false, "validate only, store nothing")

	return cmd
}

func runImport(cmd *cobra.Command, path string, flags importFlags) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, "console")
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	rows, err := importer.ReadFile(path, importer.Options{Sheet: flags.sheet})
	if err != nil {
		return err
	}

	// a dry run never touches the database
	var repo service.PaymentRepository
	if !flags.dryRun {
		db, err := postgres.NewPostgresConnection(cmd.Context(), postgres.ConnectionInfo{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Username: cfg.Postgres.User,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
			Password: cfg.Postgres.Password,
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer postgres.Close(db)

		if err := repository.EnsureSchema(cmd.Context(), db); err != nil {
			return err
		}
		repo = repository.NewPaymentRepository(db)
	}

	payments := service.NewPaymentService(repo, nil, validation.NewDefaultBuilder(), time.Now, cfg.Location, log)
	imports := service.NewImportService(payments, nil, nil, log)

	report, err := imports.Import(cmd.Context(), rows, service.ImportOptions{
		DryRun: flags.dryRun,
		Source: filepath.Base(path),
	})
	if err != nil {
		return err
	}

	if err := printReport(cmd.OutOrStdout(), filepath.Base(path), report); err != nil {
		return err
	}
	log.Debug("import done", zap.Int("failed", report.Failed))

	if report.Failed > 0 {
		return errRowsFailed
	}
	return nil
}
