// Package main provides the CLI entrypoint for trialrank.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/trialrank/internal/board"
	"github.com/verte-zerg/trialrank/internal/config"
	"github.com/verte-zerg/trialrank/internal/esologs"
	"github.com/verte-zerg/trialrank/internal/ledger"
	"github.com/verte-zerg/trialrank/internal/logging"
	"github.com/verte-zerg/trialrank/internal/model"
	"github.com/verte-zerg/trialrank/internal/pipeline"
	"github.com/verte-zerg/trialrank/internal/registry"
	"github.com/verte-zerg/trialrank/internal/sheet"
	"github.com/verte-zerg/trialrank/internal/store"
)

const defaultLeaderboardTop = 10

var (
	configPath string
	dbPath     string
	sheetName  string
	logLevel   string
	forceColor bool

	leaderboardTop int
	logsState      string
	zonesCheck     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.Defaults()
	rootCmd := &cobra.Command{
		Use:           "trialrank",
		Short:         "Track trial closures and attendance from ESO Logs reports",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	flags.StringVar(&dbPath, "db", defaults.DBPath, "SQLite database path")
	flags.StringVar(&sheetName, "sheet", defaults.Sheet, "ledger table name")
	flags.StringVar(&logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&forceColor, "color", false, "force colored output")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newLoadCmd())
	rootCmd.AddCommand(newProcessCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newRequeueCmd())
	rootCmd.AddCommand(newZonesCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// app holds the collaborators of one invocation.
type app struct {
	settings config.Settings
	logger   *logging.Logger
	store    *store.Store
	registry *registry.Registry
	ledger   *ledger.Reconciler
	source   *esologs.Client
	pipeline *pipeline.Pipeline
}

func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	settings := config.Defaults()
	if err := settings.Apply(fileCfg); err != nil {
		return config.Settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	settings.ApplyEnv(os.Getenv)

	applyStringFlag(cmd, "db", &settings.DBPath, dbPath)
	applyStringFlag(cmd, "sheet", &settings.Sheet, sheetName)
	applyStringFlag(cmd, "log-level", &settings.LogLevel, logLevel)

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func openApp(cmd *cobra.Command, needSource bool) (*app, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	if needSource {
		if err := settings.RequireAPIKey(); err != nil {
			return nil, err
		}
	}
	logger, err := logging.New(logging.Options{Level: settings.LogLevel, File: settings.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	st, err := store.Open(settings.DBPath)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	loc, err := settings.Location()
	if err != nil {
		_ = st.Close()
		_ = logger.Close()
		return nil, err
	}

	policy := sheet.Policy{
		InitialInterval: settings.RetryInitial,
		MaxInterval:     settings.RetryMaxInterval,
		MaxElapsed:      settings.RetryMaxElapsed,
	}
	client := sheet.NewClient(st.Table(settings.Sheet), policy, logger.Logger)

	a := &app{
		settings: settings,
		logger:   logger,
		store:    st,
		registry: registry.New(st),
		ledger:   ledger.NewReconciler(client, logger.Logger),
		source: esologs.NewClient(esologs.Options{
			BaseURL:   settings.BaseURL,
			APIKey:    settings.APIKey,
			Timeout:   settings.Timeout,
			CacheSize: settings.CacheBytes(),
			CacheTTL:  settings.CacheTTL,
		}, logger.Logger),
	}
	a.pipeline = pipeline.New(a.source, a.registry, a.ledger, pipeline.Options{
		DateLayout: settings.DateLayout,
		Location:   loc,
	}, logger.Logger)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
	if err := a.logger.Close(); err != nil {
		logErrf("failed to close log file: %v\n", err)
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file|->",
		Short: "Resolve report links without recording anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyzeCmd,
	}
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	text, err := esologs.ReadText(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.Analyze(cmd.Context(), text)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return writeLine(cmd, "No report links found.")
	}
	for _, r := range results {
		if r.Err != nil {
			if err := writeLine(cmd, fmt.Sprintf("%s  %s", r.URL, r.Status)); err != nil {
				return err
			}
			continue
		}
		line := fmt.Sprintf("%s  %s  %s", r.URL, r.Resolution.Summary(), r.Resolution.Meta.Title)
		if err := writeLine(cmd, line); err != nil {
			return err
		}
		for _, c := range r.Resolution.Closures {
			if err := writeLine(cmd, fmt.Sprintf("  %s: %s", c.TrialName(), strings.Join(c.WinnerNames(), ", "))); err != nil {
				return err
			}
		}
	}
	return nil
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file|->",
		Short: "Register report links found in a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoadCmd,
	}
}

func runLoadCmd(cmd *cobra.Command, args []string) error {
	text, err := esologs.ReadText(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.Load(cmd.Context(), text)
	for _, r := range results {
		if werr := writeResult(cmd, r); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to load logs: %w", err)
	}
	if len(results) == 0 {
		return writeLine(cmd, "No report links found.")
	}
	return nil
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Apply every unprocessed report to the ledger",
		Args:  cobra.NoArgs,
		RunE:  runProcessCmd,
	}
}

func runProcessCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	batch, err := a.pipeline.Process(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to process logs: %w", err)
	}
	if len(batch.Reports) == 0 && batch.Aborted == nil {
		return writeLine(cmd, "All logs processed.")
	}
	for _, r := range batch.Reports {
		if err := writeResult(cmd, r); err != nil {
			return err
		}
	}
	if batch.Aborted != nil {
		if errors.Is(batch.Aborted, context.Canceled) {
			return fmt.Errorf("interrupted after %d reports", len(batch.Reports))
		}
		return fmt.Errorf("batch aborted: ledger unavailable")
	}
	return nil
}

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top users by attendance",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboardCmd,
	}
	cmd.Flags().IntVar(&leaderboardTop, "top", defaultLeaderboardTop, "number of users to show")
	return cmd
}

func runLeaderboardCmd(cmd *cobra.Command, _ []string) error {
	if leaderboardTop <= 0 {
		return fmt.Errorf("--top must be > 0")
	}
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	standings, err := a.ledger.Leaderboard(cmd.Context(), leaderboardTop)
	if err != nil {
		return fmt.Errorf("failed to read leaderboard: %w", err)
	}
	return board.RenderLeaderboard(cmd.OutOrStdout(), standings, board.Options{ForceColor: forceColor})
}

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List registered reports",
		Args:  cobra.NoArgs,
		RunE:  runLogsCmd,
	}
	cmd.Flags().StringVar(&logsState, "state", "", "filter by state (unprocessed, processed, error)")
	return cmd
}

func runLogsCmd(cmd *cobra.Command, _ []string) error {
	state, err := parseState(logsState)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.registry.List(cmd.Context(), state)
	if err != nil {
		return err
	}
	return board.RenderReports(cmd.OutOrStdout(), reports, board.Options{ForceColor: forceColor})
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <url>",
		Short: "Move an errored report back to the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runRequeueCmd,
	}
}

func runRequeueCmd(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.Requeue(cmd.Context(), args[0]); err != nil {
		return err
	}
	return writeLine(cmd, fmt.Sprintf("%s  requeued", args[0]))
}

func newZonesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Show the trial reference table",
		Args:  cobra.NoArgs,
		RunE:  runZonesCmd,
	}
	cmd.Flags().BoolVar(&zonesCheck, "check", false, "compare final encounters against ESO Logs")
	return cmd
}

func runZonesCmd(cmd *cobra.Command, _ []string) error {
	if !zonesCheck {
		return board.RenderZones(cmd.OutOrStdout(), model.Zones(), board.Options{ForceColor: forceColor})
	}
	a, err := openApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	remote, err := a.source.FetchZones(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch zones: %w", err)
	}
	mismatches := 0
	for _, rz := range remote {
		zone, ok := model.LookupZone(rz.Name)
		if !ok {
			continue
		}
		if zone.FinalEncounterID == rz.FinalEncounterID {
			continue
		}
		mismatches++
		line := fmt.Sprintf("%s: final encounter %d (%s), ESO Logs reports %d (%s)",
			zone.ShortCode, zone.FinalEncounterID, zone.FinalEncounterName, rz.FinalEncounterID, rz.FinalEncounterName)
		if err := writeLine(cmd, line); err != nil {
			return err
		}
	}
	if mismatches == 0 {
		return writeLine(cmd, "Zone table matches ESO Logs.")
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func parseState(value string) (model.ReportState, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case string(model.StateUnprocessed):
		return model.StateUnprocessed, nil
	case string(model.StateProcessed):
		return model.StateProcessed, nil
	case string(model.StateError):
		return model.StateError, nil
	default:
		return "", fmt.Errorf("unknown --state %q (unprocessed, processed, error)", value)
	}
}

func writeResult(cmd *cobra.Command, r pipeline.ReportResult) error {
	line := fmt.Sprintf("%s  %s", r.URL, r.Status)
	if r.Summary != "" {
		line += "  " + r.Summary
	}
	return writeLine(cmd, line)
}

func writeLine(cmd *cobra.Command, line string) error {
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = value
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
