package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/studiowebux/perfwatch/internal/cli"
	"github.com/studiowebux/perfwatch/internal/client"
	"github.com/studiowebux/perfwatch/internal/config"
	"github.com/studiowebux/perfwatch/internal/history"
	"github.com/studiowebux/perfwatch/internal/logging"
	"github.com/studiowebux/perfwatch/internal/server"
	"github.com/studiowebux/perfwatch/internal/session"
	"github.com/studiowebux/perfwatch/internal/tui"
	"github.com/studiowebux/perfwatch/internal/version"
	"go.uber.org/zap"
)

var (
	appVersion = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "perfwatch",
	Short: "perfwatch - live performance test execution viewer",
	Long: `perfwatch follows a performance test execution on the test-management API,
aggregating per-target samples, error counters and HTTP status codes as they arrive.

Configuration is read from ~/.perfwatch/config.yaml, PERFWATCH_* environment
variables and flags, in increasing order of precedence.

Examples:
  perfwatch watch 6f1c2e                     # Live dashboard
  perfwatch show 6f1c2e -o json              # One-shot report
  perfwatch show 6f1c2e --tab error          # Error counters and samples
  perfwatch show 6f1c2e -q 'data.maxOps'     # JMESPath query over the report
  perfwatch show 6f1c2e --target payment     # Fuzzy-select targets
  perfwatch replay run.jsonc                 # Report from a recorded dump
  perfwatch history                          # Previously watched runs
  perfwatch serve --listen :8089             # HTTP/WebSocket API`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch <execution-id>",
	Short: "Open the live dashboard for an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd, args[0])
	},
}

var showCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Print a report for an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShow(cmd, args[0])
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <dump.jsonc>",
	Short: "Print a report from a recorded execution dump",
	Long: `Replay ingests a recorded execution dump (JSON with comments allowed)
through the same pipeline as a live execution, without contacting the API.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, args[0])
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or delete recorded runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve execution reports over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, optionally checking for a newer release",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd)
	},
}

// Global flags
var (
	flagConfig   string
	flagBaseURL  string
	flagToken    string
	flagLogLevel string
)

// Flags for show/replay
var (
	flagOutput  string
	flagQuery   string
	flagTarget  string
	flagTab     string
	flagSave    string
	flagFollow  bool
	flagTimeout time.Duration
)

// Flags for history
var (
	historyLimit  int
	historyOutput string
	historyDelete int64
)

var flagListen string

var (
	versionCheck bool
	versionURL   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.perfwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "Test-management API base URL")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API bearer token")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug/info/warn/error)")

	for _, c := range []*cobra.Command{showCmd, replayCmd} {
		c.Flags().StringVarP(&flagOutput, "output", "o", "", "Output format (json/yaml/text)")
		c.Flags().StringVarP(&flagQuery, "query", "q", "", "JMESPath query or $(shell command) over the report")
		c.Flags().StringVarP(&flagTarget, "target", "t", "", "Fuzzy pattern selecting targets")
		c.Flags().StringVar(&flagTab, "tab", "samples", "Tab to report (samples/error/httpCode)")
		c.Flags().StringVarP(&flagSave, "save", "s", "", "Save report to file")
	}
	showCmd.Flags().BoolVarP(&flagFollow, "follow", "f", false, "Wait until a running execution finishes")
	showCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Give up waiting after this long (0 waits forever)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list (0 lists all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Output format (json/yaml/text)")
	historyCmd.Flags().Int64Var(&historyDelete, "delete", 0, "Delete the run with this id")

	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default from server.listen)")

	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check for a newer release")
	versionCmd.Flags().StringVar(&versionURL, "release-url", version.DefaultReleaseURL, "Latest release endpoint")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// bindFlags maps persistent flags onto their config keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"api.base_url": "base-url",
		"api.token":    "token",
		"log.level":    "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig initializes ~/.perfwatch and resolves the configuration
func loadConfig(cmd *cobra.Command, requireAPI bool) (*config.Config, error) {
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}

	path := config.ConfigFile
	if flagConfig != "" {
		path = flagConfig
	}

	v := viper.New()
	if err := bindFlags(v, cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	if requireAPI {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, file string) (*zap.Logger, error) {
	if cfg.Log.File != "" {
		file = cfg.Log.File
	}
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   file,
	})
}

func newClient(cfg *config.Config, log *zap.Logger) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		Timeout:         cfg.API.Timeout,
		Insecure:        cfg.API.Insecure,
		CAFile:          cfg.API.CAFile,
		CacheTTL:        cfg.API.CacheTTL,
		CacheMaxEntries: cfg.API.CacheMaxEntries,
		Logger:          log,
	})
}

func sessionOptions(cfg *config.Config, log *zap.Logger, rec session.Recorder) session.Options {
	return session.Options{
		PageSize:    cfg.API.PageSize,
		MinInterval: cfg.Poll.MinInterval,
		Logger:      log,
		Recorder:    rec,
	}
}

// openHistory opens the run history; a failure only disables recording
func openHistory(log *zap.Logger) (session.Recorder, func()) {
	mgr, err := history.NewManager(config.DatabasePath)
	if err != nil {
		log.Warn("run history disabled", zap.Error(err))
		return nil, func() {}
	}
	return mgr, func() { _ = mgr.Close() }
}

// runWatch starts the interactive dashboard
func runWatch(cmd *cobra.Command, execID string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	// The dashboard owns the terminal, so logs always go to a file
	log, err := newLogger(cfg, config.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	api, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	rec, closeHistory := openHistory(log)
	defer closeHistory()

	s := session.New(api, sessionOptions(cfg, log, rec))
	defer s.Close()
	return tui.Run(s, execID)
}

func showOptions(cfg *config.Config, log *zap.Logger, rec session.Recorder) cli.ShowOptions {
	format := flagOutput
	if format == "" {
		format = cli.DefaultFormat(os.Stdout)
	}
	return cli.ShowOptions{
		OutputFormat: format,
		Query:        flagQuery,
		Target:       flagTarget,
		Tab:          flagTab,
		SavePath:     flagSave,
		Follow:       flagFollow,
		Timeout:      flagTimeout,
		Color:        flagSave == "" && cli.IsTerminal(os.Stdout),
		Session:      sessionOptions(cfg, log, rec),
	}
}

// runShow prints a one-shot report
func runShow(cmd *cobra.Command, execID string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	api, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	rec, closeHistory := openHistory(log)
	defer closeHistory()

	opts := showOptions(cfg, log, rec)
	opts.ExecutionID = execID
	return cli.Show(cmd.Context(), api, opts, os.Stdout)
}

// runReplay prints a report from a dump file without contacting the API
func runReplay(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	return cli.Replay(cmd.Context(), path, showOptions(cfg, log, nil), os.Stdout)
}

// runHistory lists or deletes recorded runs
func runHistory(cmd *cobra.Command) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	mgr, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	format := historyOutput
	if format == "" {
		format = cli.DefaultFormat(os.Stdout)
	}
	return cli.History(cmd.Context(), mgr, cli.HistoryOptions{
		Limit:        historyLimit,
		OutputFormat: format,
		Delete:       historyDelete,
	}, os.Stdout)
}

// runServe serves reports until interrupted
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	api, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	rec, closeHistory := openHistory(log)
	defer closeHistory()

	addr := cfg.Server.Listen
	if flagListen != "" {
		addr = flagListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(api, server.Options{
		Session: sessionOptions(cfg, log, rec),
		Logger:  log,
	})
	return srv.Run(ctx, addr)
}

// runVersion prints the version and, with --check, the latest release
func runVersion(cmd *cobra.Command) error {
	fmt.Printf("perfwatch %s\n", appVersion)
	if !versionCheck {
		return nil
	}
	rel, newer, err := version.NewChecker(versionURL).Latest(cmd.Context(), appVersion)
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}
	if newer {
		fmt.Printf("A newer version is available: %s (%s)\n", rel.Version, rel.URL)
	} else {
		fmt.Println("You are running the latest version")
	}
	return nil
}
