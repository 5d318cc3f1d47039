package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	pluginfilter "github.com/ferro-labs/plugin-filter"
	"github.com/ferro-labs/plugin-filter/internal/logging"
	"github.com/ferro-labs/plugin-filter/internal/version"
)

// rootOptions collects the flags shared by every command.
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string

	input         string
	output        string
	timeout       string
	concurrency   int
	maxRedirects  int
	userAgent     string
	reportFormat  string
	historyDSN    string
	historyDriver string
	metricsFile   string
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootOptions{})
}

func buildRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pluginfilter",
		Short: "Keep only the plugins whose URLs are reachable",
		Long: `pluginfilter reads a plugin list, sends one HEAD request per plugin URL
under a concurrency limit, writes the plugins that answered with a 2xx status
to the output file and lists the rejected ones with the reason.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			logging.Setup(opts.logLevel, opts.logFormat)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.resolveConfig(cmd)
			if err != nil {
				return err
			}
			f, err := pluginfilter.New(cfg, pluginfilter.WithOutput(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			ctx, stop := commandContext(cmd)
			defer stop()

			_, err = f.Run(ctx)
			return err
		},
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", os.Getenv(pluginfilter.EnvConfig), "config file (.json, .yaml, .yml)")
	pf.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "log format: text or json")

	pf.StringVarP(&opts.input, "input", "i", pluginfilter.DefaultInputFile, "plugin list to validate")
	pf.StringVarP(&opts.output, "output", "o", pluginfilter.DefaultOutputFile, "where to write the valid plugins")
	pf.StringVar(&opts.timeout, "timeout", "5s", "per-probe timeout (seconds or Go duration)")
	pf.IntVarP(&opts.concurrency, "concurrency", "c", 10, "maximum number of probes in flight")
	pf.IntVar(&opts.maxRedirects, "max-redirects", 10, "maximum redirects followed per probe")
	pf.StringVar(&opts.userAgent, "user-agent", "", "User-Agent header sent with probes")
	pf.StringVar(&opts.reportFormat, "report", "text", "report format: text or json")
	pf.StringVar(&opts.historyDSN, "history-dsn", "", "store outcomes in this SQLite path or Postgres DSN")
	pf.StringVar(&opts.historyDriver, "history-driver", "sqlite", "history backend: sqlite or postgres")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")

	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and finally
// any flag the user set explicitly.
func (o *rootOptions) resolveConfig(cmd *cobra.Command) (pluginfilter.Config, error) {
	cfg := pluginfilter.DefaultConfig()
	if o.configFile != "" {
		loaded, err := pluginfilter.LoadConfig(o.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
	}
	if err := pluginfilter.ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.InputFile = o.input
	}
	if flags.Changed("output") {
		cfg.OutputFile = o.output
	}
	if flags.Changed("timeout") {
		d, err := pluginfilter.ParseDuration(o.timeout)
		if err != nil {
			return cfg, fmt.Errorf("--timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if flags.Changed("max-redirects") {
		cfg.MaxRedirects = o.maxRedirects
	}
	if flags.Changed("user-agent") {
		cfg.UserAgent = o.userAgent
	}
	if flags.Changed("report") {
		cfg.Report = o.reportFormat
	}
	if flags.Changed("history-dsn") {
		cfg.History.DSN = o.historyDSN
	}
	if flags.Changed("history-driver") {
		cfg.History.Driver = o.historyDriver
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}

	if err := pluginfilter.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pluginfilter %s\n", version.String())
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// commandContext returns a context cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
