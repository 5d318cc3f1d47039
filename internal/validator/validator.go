// Package validator classifies plugin records as reachable or not. It fans a
// HEAD probe out per record under a fixed concurrency ceiling and returns the
// outcomes in input order, whatever order the probes finish in.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ferro-labs/plugin-filter/internal/metrics"
	"github.com/ferro-labs/plugin-filter/internal/probe"
	"github.com/ferro-labs/plugin-filter/plugin"
)

// Defaults used when the caller has no configuration of its own.
const (
	DefaultConcurrency = 10
	DefaultTimeout     = 5 * time.Second
)

// ReasonMissingURL is reported for records with an empty url.
const ReasonMissingURL = "Missing URL field"

// Outcome is the classification of one record. Reason is set iff !Valid.
type Outcome struct {
	Record plugin.Record
	Valid  bool
	Reason string
	// StatusCode is the final HTTP status, 0 when no response arrived.
	StatusCode int
	Duration   time.Duration
}

// ResultSet is the partition handed to the writer and the reporters.
type ResultSet struct {
	Desc    string
	Valid   []plugin.Record
	Invalid []Outcome
}

// Options configures a Validator.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Validator runs probes for a batch of records.
type Validator struct {
	prober      probe.Prober
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// New builds a Validator. A concurrency below 1 or a non-positive timeout is
// a programming error and panics.
func New(p probe.Prober, opts Options) *Validator {
	if p == nil {
		panic("validator: nil prober")
	}
	if opts.Concurrency < 1 {
		panic(fmt.Sprintf("validator: concurrency must be >= 1, got %d", opts.Concurrency))
	}
	if opts.Timeout <= 0 {
		panic(fmt.Sprintf("validator: timeout must be positive, got %s", opts.Timeout))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		prober:      p,
		concurrency: opts.Concurrency,
		timeout:     opts.Timeout,
		logger:      logger,
	}
}

// Validate returns one Outcome per record; out[i] always describes
// records[i]. A failing probe never affects the others. Cancelling ctx
// stops the batch early and marks unfinished records invalid.
func (v *Validator) Validate(ctx context.Context, records []plugin.Record) []Outcome {
	out := make([]Outcome, len(records))

	// Probes never return an error, so the group is only used for its limit.
	var g errgroup.Group
	g.SetLimit(v.concurrency)

	for i, rec := range records {
		if rec.URL == "" {
			out[i] = Outcome{Record: rec, Reason: ReasonMissingURL}
			v.record(ctx, out[i], metrics.ResultMissingURL)
			continue
		}
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Record: rec, Reason: probe.Describe(err, v.timeout)}
			v.record(ctx, out[i], metrics.ResultTransportError)
			continue
		}
		i, rec := i, rec
		g.Go(func() error {
			out[i] = v.check(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (v *Validator) check(ctx context.Context, rec plugin.Record) Outcome {
	metrics.ProbesInFlight.Inc()
	res := v.prober.Probe(ctx, rec.URL)
	metrics.ProbesInFlight.Dec()
	metrics.ProbeDuration.Observe(res.Duration.Seconds())

	o := Outcome{Record: rec, StatusCode: res.StatusCode, Duration: res.Duration}
	switch {
	case res.Err != nil:
		o.Reason = probe.Describe(res.Err, v.timeout)
		v.record(ctx, o, metrics.ResultTransportError)
	case res.StatusCode >= 200 && res.StatusCode < 300:
		o.Valid = true
		v.record(ctx, o, metrics.ResultValid)
	default:
		o.Reason = fmt.Sprintf("HTTP %d", res.StatusCode)
		v.record(ctx, o, metrics.ResultHTTPError)
	}
	return o
}

func (v *Validator) record(ctx context.Context, o Outcome, result string) {
	metrics.ProbesTotal.WithLabelValues(result).Inc()
	v.logger.DebugContext(ctx, "plugin checked",
		"name", o.Record.Name,
		"url", o.Record.URL,
		"result", result,
		"status", o.StatusCode,
		"reason", o.Reason,
		"duration_ms", o.Duration.Milliseconds(),
	)
}

// Partition splits outcomes into the valid records and the invalid outcomes,
// keeping input order in both.
func Partition(desc string, outcomes []Outcome) ResultSet {
	rs := ResultSet{Desc: desc, Valid: []plugin.Record{}}
	for _, o := range outcomes {
		if o.Valid {
			rs.Valid = append(rs.Valid, o.Record)
		} else {
			rs.Invalid = append(rs.Invalid, o)
		}
	}
	return rs
}

// Document returns the output document for the valid subset.
func (rs ResultSet) Document() plugin.Document {
	return plugin.Document{Desc: rs.Desc, Plugins: rs.Valid}
}
