// Package run drives the per-row pipeline: read, validate, dispatch,
// report. Rows are processed strictly in order and every failure is
// contained to its own row; only configuration problems stop a run.
package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/nragusa/tm-rapid7-uninstall/internal/command"
	"github.com/nragusa/tm-rapid7-uninstall/internal/source"
	"github.com/nragusa/tm-rapid7-uninstall/internal/validate"
)

// Row outcome labels, shared with the report channel.
const (
	OutcomeDispatched = "dispatched"
	OutcomeInvalid    = "invalid"
	OutcomeMalformed  = "malformed"
	OutcomeFailed     = "failed"
)

// Dispatcher submits one uninstall command to one instance.
type Dispatcher interface {
	Dispatch(ctx context.Context, instanceID string, spec command.Spec) (string, error)
	Preflight(ctx context.Context, instanceID string) error
}

// Reporter receives one event per processed row plus the final
// summary. Report failures are logged and never affect row handling.
type Reporter interface {
	Row(row int, instanceID, outcome, detail, commandID string) error
	Done(s Summary) error
}

// Summary counts every row of a run by outcome.
type Summary struct {
	Total      int
	Malformed  int
	Invalid    int
	Failed     int
	Dispatched int
}

// Runner holds everything fixed for the duration of one run.
type Runner struct {
	Dispatcher Dispatcher
	Spec       command.Spec
	Log        *slog.Logger
	// Reporter may be nil when no collector endpoint is configured.
	Reporter Reporter
	// Out receives operator-facing per-row failure lines. Defaults to
	// stderr.
	Out io.Writer
	// Preflight checks the SSM agent before each dispatch.
	Preflight bool
}

var (
	failLine = color.New(color.FgRed)
	skipLine = color.New(color.FgYellow)
)

// Process consumes src to the end and returns the summary. The only
// early exit is context cancellation, checked between rows so that an
// interrupt never abandons a half-issued request.
func (r *Runner) Process(ctx context.Context, src *source.Reader) Summary {
	out := r.Out
	if out == nil {
		out = os.Stderr
	}

	var s Summary
	for {
		if ctx.Err() != nil {
			r.Log.Warn("run interrupted", "rows_processed", s.Total)
			break
		}
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !errors.Is(err, source.ErrMalformedRow) {
				// Reader errors other than per-row ones are not
				// recoverable mid-file.
				r.Log.Error("input file unreadable", "row", rec.Row, "error", err)
				break
			}
			s.Total++
			s.Malformed++
			metricRows.Inc()
			metricMalformed.Inc()
			r.Log.Warn("malformed row skipped", "row", rec.Row, "error", err)
			skipLine.Fprintf(out, "row %d: malformed, skipped (%v)\n", rec.Row, err)
			r.report(rec.Row, "", OutcomeMalformed, err.Error(), "")
			continue
		}

		s.Total++
		metricRows.Inc()

		if !validate.InstanceID(rec.RawID) {
			s.Invalid++
			metricInvalid.Inc()
			r.Log.Warn("invalid instance id skipped", "row", rec.Row, "raw_id", rec.RawID)
			skipLine.Fprintf(out, "row %d: invalid instance ID %q, skipped\n", rec.Row, rec.RawID)
			r.report(rec.Row, rec.RawID, OutcomeInvalid, "not an instance ID", "")
			continue
		}

		if r.Preflight {
			if err := r.Dispatcher.Preflight(ctx, rec.RawID); err != nil {
				s.Failed++
				metricFailure.Inc()
				r.Log.Error("preflight failed", "row", rec.Row, "instance_id", rec.RawID, "error", err)
				failLine.Fprintf(out, "row %d: %s: preflight failed: %v\n", rec.Row, rec.RawID, err)
				r.report(rec.Row, rec.RawID, OutcomeFailed, err.Error(), "")
				continue
			}
		}

		commandID, err := r.Dispatcher.Dispatch(ctx, rec.RawID, r.Spec)
		if err != nil {
			s.Failed++
			metricFailure.Inc()
			r.Log.Error("dispatch failed", "row", rec.Row, "instance_id", rec.RawID, "error", err)
			failLine.Fprintf(out, "row %d: %v\n", rec.Row, err)
			r.report(rec.Row, rec.RawID, OutcomeFailed, err.Error(), "")
			continue
		}

		s.Dispatched++
		metricSuccess.Inc()
		r.Log.Info("uninstall dispatched", "row", rec.Row, "instance_id", rec.RawID, "command_id", commandID)
		r.report(rec.Row, rec.RawID, OutcomeDispatched, "", commandID)
	}

	if r.Reporter != nil {
		if err := r.Reporter.Done(s); err != nil {
			r.Log.Warn("summary report failed", "error", err)
		}
	}
	return s
}

func (r *Runner) report(row int, instanceID, outcome, detail, commandID string) {
	if r.Reporter == nil {
		return
	}
	if err := r.Reporter.Row(row, instanceID, outcome, detail, commandID); err != nil {
		r.Log.Warn("row report failed", "row", row, "error", err)
	}
}
