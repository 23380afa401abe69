package run

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nragusa/tm-rapid7-uninstall/internal/command"
	"github.com/nragusa/tm-rapid7-uninstall/internal/source"
)

type fakeDispatcher struct {
	targets    []string
	err        error
	preflights []string
	preflight  error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, instanceID string, spec command.Spec) (string, error) {
	f.targets = append(f.targets, instanceID)
	if f.err != nil {
		return "", f.err
	}
	return "cmd-" + instanceID, nil
}

func (f *fakeDispatcher) Preflight(ctx context.Context, instanceID string) error {
	f.preflights = append(f.preflights, instanceID)
	return f.preflight
}

type recordingReporter struct {
	rows    []string
	summary *Summary
}

func (r *recordingReporter) Row(row int, instanceID, outcome, detail, commandID string) error {
	r.rows = append(r.rows, outcome)
	return nil
}

func (r *recordingReporter) Done(s Summary) error {
	r.summary = &s
	return nil
}

func openCSV(t *testing.T, content string) *source.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := source.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func newRunner(d Dispatcher, rep Reporter) *Runner {
	spec, _ := command.ForPackage(command.ModeDistributor, "X")
	return &Runner{
		Dispatcher: d,
		Spec:       spec,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Reporter:   rep,
		Out:        &bytes.Buffer{},
	}
}

func TestRowIndependence(t *testing.T) {
	// An invalid row sandwiched between two valid ones must not stop
	// the loop; the dispatcher sees exactly rows 1 and 3.
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\nbad-id,X\ni-1234abcd1234abcd1,X\n")
	d := &fakeDispatcher{}
	rep := &recordingReporter{}

	s := newRunner(d, rep).Process(context.Background(), src)

	want := []string{"i-1234abcd", "i-1234abcd1234abcd1"}
	if len(d.targets) != 2 || d.targets[0] != want[0] || d.targets[1] != want[1] {
		t.Fatalf("dispatched targets = %v, want %v", d.targets, want)
	}
	if s.Total != 3 || s.Invalid != 1 || s.Dispatched != 2 || s.Failed != 0 {
		t.Errorf("summary = %+v, want total 3, invalid 1, dispatched 2", s)
	}
	if rep.summary == nil || *rep.summary != s {
		t.Errorf("reporter summary = %+v, want %+v", rep.summary, s)
	}
	if got := strings.Join(rep.rows, ","); got != "dispatched,invalid,dispatched" {
		t.Errorf("reported outcomes = %q", got)
	}
}

func TestNoDispatchOnInvalidInput(t *testing.T) {
	src := openCSV(t, "resourceId,package\nbad-id,X\ni-UPPER,X\nnope,X\n")
	d := &fakeDispatcher{}

	s := newRunner(d, nil).Process(context.Background(), src)

	if len(d.targets) != 0 {
		t.Fatalf("dispatcher called %d times for all-invalid input", len(d.targets))
	}
	if s.Total != 3 || s.Invalid != 3 {
		t.Errorf("summary = %+v", s)
	}
}

func TestDispatchErrorDoesNotHaltRun(t *testing.T) {
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\ni-00000000,X\n")
	d := &fakeDispatcher{err: errors.New("throttled")}

	s := newRunner(d, nil).Process(context.Background(), src)

	if len(d.targets) != 2 {
		t.Fatalf("dispatcher called %d times, want 2", len(d.targets))
	}
	if s.Failed != 2 || s.Dispatched != 0 {
		t.Errorf("summary = %+v, want 2 failed", s)
	}
}

func TestMalformedRowSkipped(t *testing.T) {
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\nonly-one-column\ni-00000000,X\n")
	d := &fakeDispatcher{}

	s := newRunner(d, nil).Process(context.Background(), src)

	if len(d.targets) != 2 {
		t.Fatalf("dispatcher called %d times, want 2", len(d.targets))
	}
	if s.Total != 3 || s.Malformed != 1 || s.Dispatched != 2 {
		t.Errorf("summary = %+v", s)
	}
}

func TestPreflightFailureCountsAsRowFailure(t *testing.T) {
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\n")
	d := &fakeDispatcher{preflight: errors.New("agent offline")}

	r := newRunner(d, nil)
	r.Preflight = true
	s := r.Process(context.Background(), src)

	if len(d.preflights) != 1 {
		t.Fatalf("preflight called %d times, want 1", len(d.preflights))
	}
	if len(d.targets) != 0 {
		t.Fatal("dispatch must not run after a failed preflight")
	}
	if s.Failed != 1 {
		t.Errorf("summary = %+v, want 1 failed", s)
	}
}

func TestCancellationStopsBetweenRows(t *testing.T) {
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\ni-00000000,X\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDispatcher{}
	s := newRunner(d, nil).Process(ctx, src)

	if len(d.targets) != 0 || s.Total != 0 {
		t.Errorf("canceled run still processed rows: targets=%v summary=%+v", d.targets, s)
	}
}

func TestMetricsAdvancePerOutcome(t *testing.T) {
	src := openCSV(t, "resourceId,package\ni-1234abcd,X\nbad-id,X\nshort\n")
	d := &fakeDispatcher{}

	rowsBefore := testutil.ToFloat64(metricRows)
	okBefore := testutil.ToFloat64(metricSuccess)
	invalidBefore := testutil.ToFloat64(metricInvalid)
	malformedBefore := testutil.ToFloat64(metricMalformed)

	newRunner(d, nil).Process(context.Background(), src)

	if got := testutil.ToFloat64(metricRows) - rowsBefore; got != 3 {
		t.Errorf("rows counter advanced by %v, want 3", got)
	}
	if got := testutil.ToFloat64(metricSuccess) - okBefore; got != 1 {
		t.Errorf("success counter advanced by %v, want 1", got)
	}
	if got := testutil.ToFloat64(metricInvalid) - invalidBefore; got != 1 {
		t.Errorf("invalid counter advanced by %v, want 1", got)
	}
	if got := testutil.ToFloat64(metricMalformed) - malformedBefore; got != 1 {
		t.Errorf("malformed counter advanced by %v, want 1", got)
	}
}
