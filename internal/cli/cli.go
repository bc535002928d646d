package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"auralis.click/internal/config"
	afs "auralis.click/internal/fs"
	"auralis.click/internal/output"
	"auralis.click/internal/tracking"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	fs               afero.Fs // output files
	assets           afero.Fs // read-only view for assets, packs and HRTF sets
	configManager    *config.ConfigManager
	backendFactory   output.BackendFactory
	terminalDetector TerminalDetector
	config           *config.Config
	trackingDB       *sql.DB // Optional tracking database
}

// NewCLI creates a new CLI instance working on the OS filesystem
func NewCLI() *CLI {
	return newCLI(afs.NewDefaultFactory().Production(), afs.NewDefaultFactory())
}

// NewCLIWithFilesystem creates a CLI whose config, assets and output files
// all go through fs
func NewCLIWithFilesystem(fs afero.Fs) *CLI {
	return newCLI(fs, afs.NewDefaultFactory())
}

func newCLI(fs afero.Fs, factory afs.Factory) *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:     "auralis",
		Short:   "Real-time 3D audio renderer",
		Long:    "Auralis mixes positioned sounds, ambient beds and reverb zones into binaural stereo, either offline to a WAV file or live to an audio device.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli := cliFromContext(cmd.Context())
			if cli == nil {
				return fmt.Errorf("CLI instance not found in context")
			}
			cfg, err := loadAndValidateConfig(cmd, cli)
			if err != nil {
				return err
			}
			cli.config = cfg
			setupLogging(cli.configManager, cfg, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newFormatsCommand())
	rootCmd.AddCommand(newAnalyzeCommand())

	return &CLI{
		rootCmd:       rootCmd,
		fs:            fs,
		assets:        factory.ReadOnly(fs),
		configManager: config.NewConfigManagerWithFilesystem(fs),
	}
}

type cliKey struct{}

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliKey{}, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			slog.Error("config load failed", "file", configFile, "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	if logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	defer func() {
		if c.trackingDB != nil {
			if err := c.trackingDB.Close(); err != nil {
				slog.Error("error closing tracking database", "error", err)
			}
			c.trackingDB = nil
		}
	}()

	c.rootCmd.SetArgs(args[1:]) // Skip program name
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// factory returns the output backend factory, creating the platform one on
// first use
func (c *CLI) factory() output.BackendFactory {
	if c.backendFactory == nil {
		c.backendFactory = output.NewBackendFactory()
	}
	return c.backendFactory
}

// setupLogging sends records at the configured level to stderr and, when
// file logging is enabled, everything down to debug to a rotating file
func setupLogging(cm *config.ConfigManager, cfg *config.Config, stderrWriter io.Writer) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		logFilePath := cm.ResolveLogFilePath(cfg.FileLogging.Filename)

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			// continue without file logging rather than failing
			slog.Error("failed to create log directory", "path", logDir, "error", err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	}

	slog.SetDefault(slog.New(NewMultiLevelHandler(handlers...)))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}

// initializeTracking opens the telemetry database if enabled. Failures
// leave tracking off; they never stop a command.
func (c *CLI) initializeTracking() {
	if c.trackingDB != nil {
		return
	}

	cfg := c.config
	if cfg == nil || cfg.Tracking == nil || !cfg.Tracking.Enabled {
		slog.Debug("tracking disabled, skipping database initialization")
		return
	}

	dbPath := c.configManager.ResolveTrackingDBPath(cfg.Tracking)
	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Error("failed to initialize tracking database, continuing without tracking",
			"path", dbPath, "error", err)
		return
	}

	c.trackingDB = db
	slog.Debug("tracking database initialized", "path", dbPath)
}

// startRecorder begins a tracking session, or returns nil when tracking is
// unavailable
func (c *CLI) startRecorder(info tracking.SessionInfo) *tracking.Recorder {
	c.initializeTracking()
	if c.trackingDB == nil {
		return nil
	}
	rec, err := tracking.NewRecorder(c.trackingDB, info)
	if err != nil {
		slog.Warn("failed to start tracking session", "error", err)
		return nil
	}
	return rec
}
