// Package pluginfilter checks a plugin list for reachable URLs and keeps only
// the entries that answer a HEAD request with a 2xx status.
//
// A run loads the input document, probes every record under a concurrency
// ceiling, writes the valid subset to the output file and prints a summary of
// the rejected entries:
//
//	cfg := pluginfilter.DefaultConfig()
//	f, err := pluginfilter.New(cfg)
//	if err != nil { ... }
//	defer f.Close()
//	rs, err := f.Run(ctx)
//
// Only file-level problems (unreadable input, schema mismatch, unwritable
// output) are returned as errors. Per-record failures end up in the report.
package pluginfilter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/ferro-labs/plugin-filter/internal/history"
	"github.com/ferro-labs/plugin-filter/internal/logging"
	"github.com/ferro-labs/plugin-filter/internal/metrics"
	"github.com/ferro-labs/plugin-filter/internal/probe"
	"github.com/ferro-labs/plugin-filter/internal/report"
	"github.com/ferro-labs/plugin-filter/internal/validator"
	"github.com/ferro-labs/plugin-filter/plugin"
)

// Filter runs validation passes for one configuration. It is safe for
// concurrent use by the HTTP service.
type Filter struct {
	cfg      Config
	client   *http.Client
	prober   probe.Prober
	history  history.Writer
	closer   io.Closer
	out      io.Writer
	reporter report.Reporter
}

// Option customises a Filter.
type Option func(*Filter)

// WithHTTPClient sets the client used by the default prober.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Filter) { f.client = c }
}

// WithProber replaces the HTTP prober entirely.
func WithProber(p probe.Prober) Option {
	return func(f *Filter) { f.prober = p }
}

// WithHistory sets the history writer, overriding cfg.History.
func WithHistory(w history.Writer) Option {
	return func(f *Filter) { f.history = w }
}

// WithOutput sets where the report is printed (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(f *Filter) { f.out = w }
}

// New validates cfg and builds a Filter. When cfg enables history and no
// writer was supplied, the store is opened here and closed by Close.
func New(cfg Config, opts ...Option) (*Filter, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	f := &Filter{cfg: cfg, out: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}

	if f.prober == nil {
		f.prober = probe.New(probe.Options{
			Client:       f.client,
			Timeout:      cfg.Timeout.Std(),
			MaxRedirects: cfg.MaxRedirects,
			UserAgent:    cfg.UserAgent,
		})
	}

	name := cfg.Report
	if name == "" {
		name = report.FormatText
	}
	r, err := report.New(name)
	if err != nil {
		return nil, err
	}
	f.reporter = r

	if f.history == nil {
		if cfg.History.Enabled() {
			store, err := history.Open(cfg.History.Driver, cfg.History.DSN)
			if err != nil {
				return nil, fmt.Errorf("opening history store: %w", err)
			}
			f.history = store
			f.closer = store
		} else {
			f.history = history.NoopWriter{}
		}
	}
	return f, nil
}

// Config returns the configuration the Filter was built with.
func (f *Filter) Config() Config { return f.cfg }

// History returns the history reader when the configured store supports
// listing, or nil.
func (f *Filter) History() history.Reader {
	r, _ := f.history.(history.Reader)
	return r
}

// Close releases the history store opened by New.
func (f *Filter) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Check validates doc in memory and records the outcomes in the history
// store. History failures are logged, never returned.
func (f *Filter) Check(ctx context.Context, doc plugin.Document) ([]validator.Outcome, validator.ResultSet) {
	ctx, runID := ensureRunID(ctx)
	log := logging.FromContext(ctx)

	v := validator.New(f.prober, validator.Options{
		Concurrency: f.cfg.Concurrency,
		Timeout:     f.cfg.Timeout.Std(),
		Logger:      log,
	})
	outcomes := v.Validate(ctx, doc.Plugins)
	rs := validator.Partition(doc.Desc, outcomes)

	if err := f.history.Write(ctx, runID, outcomes); err != nil {
		log.Warn("failed to persist run history", "error", err)
	}
	return outcomes, rs
}

// Run performs a full pass: load, validate, write, report.
func (f *Filter) Run(ctx context.Context) (validator.ResultSet, error) {
	ctx, _ = ensureRunID(ctx)
	log := logging.FromContext(ctx)

	rs, err := f.run(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		f.writeMetrics(ctx)
		return validator.ResultSet{}, err
	}
	metrics.RunsTotal.WithLabelValues("success").Inc()
	f.writeMetrics(ctx)

	log.Info("run complete",
		"valid", len(rs.Valid),
		"invalid", len(rs.Invalid),
		"output", f.cfg.OutputFile,
	)
	return rs, nil
}

func (f *Filter) run(ctx context.Context) (validator.ResultSet, error) {
	log := logging.FromContext(ctx)

	doc, err := plugin.Load(f.cfg.InputFile)
	if err != nil {
		return validator.ResultSet{}, err
	}
	log.Info("validating plugins",
		"input", f.cfg.InputFile,
		"plugins", len(doc.Plugins),
		"concurrency", f.cfg.Concurrency,
		"timeout", f.cfg.Timeout.String(),
	)

	_, rs := f.Check(ctx, doc)
	// An interrupted batch is incomplete; keep the previous output.
	if err := ctx.Err(); err != nil {
		return validator.ResultSet{}, fmt.Errorf("run interrupted: %w", err)
	}

	if err := plugin.Write(f.cfg.OutputFile, rs.Document()); err != nil {
		return validator.ResultSet{}, err
	}
	if err := f.reporter.Report(f.out, rs); err != nil {
		return validator.ResultSet{}, fmt.Errorf("printing report: %w", err)
	}
	return rs, nil
}

func (f *Filter) writeMetrics(ctx context.Context) {
	if f.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(f.cfg.MetricsFile); err != nil {
		logging.FromContext(ctx).Warn("failed to write metrics textfile", "path", f.cfg.MetricsFile, "error", err)
	}
}

func ensureRunID(ctx context.Context) (context.Context, string) {
	if id := logging.RunIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := logging.NewRunID()
	return logging.WithRunID(ctx, id), id
}
