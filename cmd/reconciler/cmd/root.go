package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang-reconciliation-engine/cmd/reconciler/config"
	"golang-reconciliation-engine/internal/anomaly"
	"golang-reconciliation-engine/internal/patterns"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/internal/reporter"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cliState carries the loaded configuration from the root command's
// pre-run hook to the subcommands
type cliState struct {
	v   *viper.Viper
	cfg *config.AppConfig
}

// NewRootCommand builds the complete command tree
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	state := &cliState{v: v}

	root := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank reconciliation and anomaly detection tool",
		Long: `Reconciler matches a client's bank transactions against the tax documents
that justify them, learns from manual confirmations, and flags unusual or
duplicated movements for review.

Examples:
  reconciler migrate
  reconciler import transactions bank.csv --client acme
  reconciler import transactions statement.ofx --format ofx --client acme
  reconciler import documents invoices.csv --client acme
  reconciler reconcile --client acme --period 2024-03
  reconciler suggest tx-001
  reconciler detect --client acme --output-format json
  reconciler serve --port 8080`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: state.init,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.String("env-file", ".env", "environment file loaded before reading RECONCILER_* variables")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.String("db", "", "path to the SQLite database (default reconciler.db)")
	pf.StringP("output-format", "f", "", "output format: console, json, yaml, csv")
	pf.StringP("output-file", "o", "", "output file path (default: stdout)")
	pf.String("preset", "", "scoring preset: default, strict, relaxed")

	_ = v.BindPFlag("database.path", pf.Lookup("db"))
	_ = v.BindPFlag("output.format", pf.Lookup("output-format"))
	_ = v.BindPFlag("output.file", pf.Lookup("output-file"))
	_ = v.BindPFlag("scoring.preset", pf.Lookup("preset"))

	root.AddCommand(
		migrateCmd(state),
		importCmd(state),
		suggestCmd(state),
		reconcileCmd(state),
		confirmCmd(state),
		undoCmd(state),
		rejectCmd(state),
		matchesCmd(state),
		detectCmd(state),
		alertsCmd(state),
		patternsCmd(state),
		serveCmd(state),
		versionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand()
	err := root.ExecuteContext(ctx)

	verbose, _ := root.PersistentFlags().GetBool("verbose")
	return NewCLIErrorHandler(os.Stderr, verbose).HandleError(err)
}

// init loads .env, the config file and the environment, then installs the
// configured global logger
func (s *cliState) init(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := config.LoadEnvFiles(envFile); err != nil {
			return err
		}
	}

	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		s.v.SetConfigFile(cfgFile)
		if err := s.v.ReadInConfig(); err != nil {
			return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check the config file exists and its syntax is valid")
		}
	}

	cfg, err := config.Load(s.v)
	if err != nil {
		return err
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "logging", cfg.Logging, err)
	}
	logger.SetGlobalLogger(log)

	s.cfg = cfg
	log.WithComponent("cli").WithFields(logger.Fields{
		"command":  cmd.CommandPath(),
		"database": cfg.Database.Path,
		"config":   s.v.ConfigFileUsed(),
	}).Debug("Configuration loaded")
	return nil
}

// openStore opens the database and brings its schema up to date
func (s *cliState) openStore(ctx context.Context) (*store.SQLiteStore, error) {
	return store.OpenAndMigrate(ctx, s.cfg.Database.Path)
}

func (s *cliState) reconciliationService(st store.Store) (*reconciler.ReconciliationService, error) {
	scoring := s.cfg.Scoring
	return reconciler.NewReconciliationService(st, &scoring,
		reconciler.WithRetryOptions(s.cfg.Retry),
		reconciler.WithPatternCache(patterns.NewCache(s.cfg.Patterns.CacheTTL)),
	)
}

func (s *cliState) detector(st store.Store) (*anomaly.Detector, error) {
	cfg := s.cfg.Anomaly
	return anomaly.NewDetector(st, &cfg)
}

// emit renders a result to --output-file, or to the command's output stream
func (s *cliState) emit(cmd *cobra.Command, render func(rg *reporter.ReportGenerator, w io.Writer) error) error {
	rc, err := s.cfg.ReportConfig()
	if err != nil {
		return err
	}
	rg, err := reporter.NewReportGenerator(rc)
	if err != nil {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "output", rc, err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if path := s.cfg.Output.File; path != "" && path != "-" {
		file, err := reporter.OpenOutput(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	return rg.Emit(out, func(w io.Writer) error { return render(rg, w) })
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", getVersionString())
			return nil
		},
	}
}
