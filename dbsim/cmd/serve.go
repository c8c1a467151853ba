package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/config"
	"github.com/sarchlab/dbsim/logging"
	"github.com/sarchlab/dbsim/node"
	"github.com/sarchlab/dbsim/persistence"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node until interrupted",
	Long: `Run a node until interrupted. The last snapshot is restored on start ` +
		`and the final one is saved on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}

		log, err := logging.New(logging.Options{
			App:    "dbsim",
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Out:    cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}

		n, err := buildNode(cfg, log)
		if err != nil {
			return err
		}

		if err := n.Start(); err != nil {
			return err
		}

		atexit.Register(func() { _ = n.Stop() })

		if open, _ := cmd.Flags().GetBool("open"); open && n.Address() != "" {
			url := "http://" + n.Address() + "/api/datablocks"
			if err := browser.OpenURL(url); err != nil {
				log.Warn().Err(err).Str("url", url).Msg("cannot open browser")
			}
		}

		waitForSignal(log)

		if err := n.Stop(); err != nil {
			atexit.Exit(1)
		}

		atexit.Exit(0)

		return nil
	},
}

func init() {
	addServeFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "TOML configuration file")
	flags.String("env-file", ".env", "file of DBSIM_* variables loaded into the environment")
	flags.StringP("listen", "l", "", "address of the HTTP API")
	flags.String("snapshot", "", "snapshot file; .sqlite, .sqlite3 and .db select SQLite")
	flags.String("snapshot-format", "", "snapshot format, json or sqlite")
	flags.String("journal", "", "SQLite file that records every mutation")
	flags.Duration("autosave", 0, "save a snapshot at this interval, 0 disables")
	flags.String("log-level", "", "trace, debug, info, warn, error or disabled")
	flags.String("log-format", "", "console or json")
	flags.Bool("no-monitoring", false, "do not serve the HTTP API")
	flags.Bool("open", false, "open the HTTP API in a browser")
}

// resolveConfig layers the configuration sources: defaults, the TOML file,
// the .env file, DBSIM_* variables and finally explicitly set flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	envFile, _ := flags.GetString("env-file")
	if err := config.LoadEnv(envFile, flags.Changed("env-file")); err != nil {
		return config.Config{}, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}

	if flags.Changed("listen") {
		cfg.Listen, _ = flags.GetString("listen")
	}

	if flags.Changed("snapshot") {
		cfg.SnapshotPath, _ = flags.GetString("snapshot")
	}

	if flags.Changed("snapshot-format") {
		cfg.SnapshotFormat, _ = flags.GetString("snapshot-format")
	}

	if flags.Changed("journal") {
		cfg.JournalPath, _ = flags.GetString("journal")
	}

	if flags.Changed("autosave") {
		cfg.AutosaveInterval, _ = flags.GetDuration("autosave")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}

	if off, _ := flags.GetBool("no-monitoring"); off {
		cfg.Monitoring = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func buildNode(cfg config.Config, log zerolog.Logger) (*node.Node, error) {
	b := node.MakeBuilder().
		WithLogger(log).
		WithAutosaveInterval(cfg.AutosaveInterval)

	if cfg.SnapshotPath != "" {
		gw, err := persistence.Open(cfg.SnapshotPath, cfg.SnapshotFormat, log)
		if err != nil {
			return nil, err
		}

		b = b.WithGateway(gw)
	}

	if cfg.JournalPath != "" {
		b = b.WithJournal(cfg.JournalPath)
	}

	if cfg.Monitoring {
		b = b.WithListenAddress(cfg.Listen)
	} else {
		b = b.WithoutMonitoring()
	}

	n, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}

	return n, nil
}

func waitForSignal(log zerolog.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	sig := <-signals
	log.Info().Str("signal", sig.String()).Msg("shutting down")
}
