package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ferro-labs/plugin-filter/internal/metrics"
	"github.com/ferro-labs/plugin-filter/internal/probe"
	"github.com/ferro-labs/plugin-filter/plugin"
)

// fakeTransport answers probes without touching the network. It counts calls
// per URL and tracks the highest number of concurrent round trips.
type fakeTransport struct {
	delay  time.Duration
	status func(req *http.Request) (int, error)

	mu          sync.Mutex
	calls       map[string]int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeTransport(status func(req *http.Request) (int, error)) *fakeTransport {
	return &fakeTransport{status: status, calls: make(map[string]int)}
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[req.URL.String()]++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	code := http.StatusOK
	if f.status != nil {
		var err error
		code, err = f.status(req)
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{
		StatusCode: code,
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

func (f *fakeTransport) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeTransport) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func byHost(req *http.Request) (int, error) {
	switch req.URL.Host {
	case "good.example":
		return http.StatusOK, nil
	case "nocontent.example":
		return http.StatusNoContent, nil
	case "bad.example":
		return http.StatusNotFound, nil
	case "edge.example":
		return 299, nil
	case "notmodified.example":
		return http.StatusNotModified, nil
	case "moved.example":
		return http.StatusMultipleChoices, nil
	case "down.example":
		return 0, errors.New("connection refused")
	default:
		return http.StatusInternalServerError, nil
	}
}

func newValidator(tr http.RoundTripper, concurrency int, timeout time.Duration) *Validator {
	p := probe.New(probe.Options{Client: &http.Client{Transport: tr}, Timeout: timeout})
	return New(p, Options{Concurrency: concurrency, Timeout: timeout})
}

func TestValidate_Classification(t *testing.T) {
	tr := newFakeTransport(byHost)
	v := newValidator(tr, DefaultConcurrency, time.Second)

	records := []plugin.Record{
		{Name: "a", URL: "https://good.example"},
		{Name: "b", URL: ""},
		{Name: "c", URL: "https://bad.example/404"},
		{Name: "d", URL: "https://nocontent.example"},
		{Name: "e", URL: "https://down.example"},
		{Name: "f", URL: "https://other.example"},
		{Name: "g", URL: "   "},
		{Name: "h", URL: "https://edge.example"},
		{Name: "i", URL: "https://notmodified.example"},
		{Name: "j", URL: "https://moved.example"},
	}
	out := v.Validate(context.Background(), records)

	if len(out) != len(records) {
		t.Fatalf("expected %d outcomes, got %d", len(records), len(out))
	}
	for i := range records {
		if out[i].Record != records[i] {
			t.Errorf("outcome %d: record %+v, want %+v", i, out[i].Record, records[i])
		}
	}

	tests := []struct {
		idx    int
		valid  bool
		reason string
	}{
		{0, true, ""},
		{1, false, ReasonMissingURL},
		{2, false, "HTTP 404"},
		{3, true, ""},
		{4, false, "connection refused"},
		{5, false, "HTTP 500"},
		{6, false, "invalid URL: missing scheme or host"},
		{7, true, ""},
		{8, false, "HTTP 304"},
		{9, false, "HTTP 300"},
	}
	for _, tt := range tests {
		got := out[tt.idx]
		if got.Valid != tt.valid {
			t.Errorf("%s: expected valid=%v, got %v (%s)", got.Record.Name, tt.valid, got.Valid, got.Reason)
		}
		if got.Reason != tt.reason {
			t.Errorf("%s: expected reason %q, got %q", got.Record.Name, tt.reason, got.Reason)
		}
	}
	if out[2].StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 recorded, got %d", out[2].StatusCode)
	}
}

func TestValidate_MissingURLMakesNoCall(t *testing.T) {
	tr := newFakeTransport(byHost)
	v := newValidator(tr, 2, time.Second)

	out := v.Validate(context.Background(), []plugin.Record{
		{Name: "empty", URL: ""},
		{Name: "good", URL: "https://good.example"},
		{Name: "empty-again", URL: ""},
	})

	if tr.totalCalls() != 1 {
		t.Fatalf("expected exactly 1 network call, got %d", tr.totalCalls())
	}
	if tr.callsFor("https://good.example") != 1 {
		t.Errorf("expected the good URL to be probed once")
	}
	if out[0].Valid || out[0].Reason != ReasonMissingURL {
		t.Errorf("unexpected outcome for empty url: %+v", out[0])
	}
}

func TestValidate_OneProbePerRecord(t *testing.T) {
	tr := newFakeTransport(byHost)
	v := newValidator(tr, 3, time.Second)

	records := []plugin.Record{
		{Name: "x", URL: "https://bad.example/1"},
		{Name: "x", URL: "https://bad.example/1"},
		{Name: "y", URL: "https://down.example"},
	}
	v.Validate(context.Background(), records)

	if got := tr.callsFor("https://bad.example/1"); got != 2 {
		t.Errorf("expected duplicate records probed independently (2 calls), got %d", got)
	}
	if got := tr.callsFor("https://down.example"); got != 1 {
		t.Errorf("expected no retry on transport failure, got %d calls", got)
	}
}

func TestValidate_ConcurrencyCeiling(t *testing.T) {
	for _, limit := range []int{1, 3, 10} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			tr := newFakeTransport(byHost)
			tr.delay = 20 * time.Millisecond
			v := newValidator(tr, limit, time.Second)

			records := make([]plugin.Record, 25)
			for i := range records {
				records[i] = plugin.Record{Name: fmt.Sprintf("p%d", i), URL: fmt.Sprintf("https://good.example/%d", i)}
			}
			out := v.Validate(context.Background(), records)

			if got := tr.maxInFlight.Load(); int(got) > limit {
				t.Fatalf("observed %d concurrent probes, ceiling is %d", got, limit)
			}
			if limit > 1 && tr.maxInFlight.Load() < 2 {
				t.Errorf("expected probes to overlap, max in flight was %d", tr.maxInFlight.Load())
			}
			for i, o := range out {
				if !o.Valid {
					t.Errorf("record %d unexpectedly invalid: %s", i, o.Reason)
				}
			}
		})
	}
}

func TestValidate_TimeoutIsLocal(t *testing.T) {
	tr := newFakeTransport(func(req *http.Request) (int, error) {
		return http.StatusOK, nil
	})
	tr.delay = 5 * time.Second

	timeout := 50 * time.Millisecond
	concurrency := 10
	v := newValidator(tr, concurrency, timeout)

	records := make([]plugin.Record, 20)
	for i := range records {
		records[i] = plugin.Record{Name: fmt.Sprintf("slow%d", i), URL: fmt.Sprintf("https://slow.example/%d", i)}
	}

	start := time.Now()
	out := v.Validate(context.Background(), records)
	elapsed := time.Since(start)

	// Two waves of ten probes, each bounded by the timeout.
	if limit := 2*timeout + 900*time.Millisecond; elapsed > limit {
		t.Fatalf("batch took %s, expected under %s", elapsed, limit)
	}
	for _, o := range out {
		if o.Valid {
			t.Fatalf("%s: expected timeout to be invalid", o.Record.Name)
		}
		if !strings.Contains(o.Reason, "timeout") {
			t.Errorf("%s: expected timeout reason, got %q", o.Record.Name, o.Reason)
		}
	}
}

func TestValidate_SlowProbeDoesNotAffectOthers(t *testing.T) {
	tr := newFakeTransport(func(req *http.Request) (int, error) {
		if req.URL.Host == "slow.example" {
			select {
			case <-time.After(5 * time.Second):
			case <-req.Context().Done():
				return 0, req.Context().Err()
			}
		}
		return http.StatusOK, nil
	})
	v := newValidator(tr, 4, 100*time.Millisecond)

	out := v.Validate(context.Background(), []plugin.Record{
		{Name: "slow", URL: "https://slow.example"},
		{Name: "fast1", URL: "https://fast.example/1"},
		{Name: "fast2", URL: "https://fast.example/2"},
	})
	if out[0].Valid {
		t.Error("expected slow probe to time out")
	}
	if !out[1].Valid || !out[2].Valid {
		t.Errorf("fast probes should succeed: %+v %+v", out[1], out[2])
	}
}

func TestValidate_CancelledContext(t *testing.T) {
	tr := newFakeTransport(byHost)
	v := newValidator(tr, 2, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := v.Validate(ctx, []plugin.Record{
		{Name: "a", URL: "https://good.example"},
		{Name: "b", URL: ""},
	})
	if out[0].Valid || out[0].Reason != "canceled" {
		t.Errorf("expected canceled outcome, got %+v", out[0])
	}
	if out[1].Reason != ReasonMissingURL {
		t.Errorf("expected missing url outcome, got %+v", out[1])
	}
	if tr.totalCalls() != 0 {
		t.Errorf("expected no probes after cancellation, got %d", tr.totalCalls())
	}
}

func TestValidate_EmptyInput(t *testing.T) {
	v := newValidator(newFakeTransport(nil), 1, time.Second)
	if out := v.Validate(context.Background(), nil); len(out) != 0 {
		t.Fatalf("expected no outcomes, got %d", len(out))
	}
}

func TestValidate_Metrics(t *testing.T) {
	validBefore := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultValid))
	missingBefore := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultMissingURL))
	httpBefore := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultHTTPError))

	v := newValidator(newFakeTransport(byHost), 2, time.Second)
	v.Validate(context.Background(), []plugin.Record{
		{Name: "a", URL: "https://good.example"},
		{Name: "b", URL: ""},
		{Name: "c", URL: "https://bad.example"},
	})

	if d := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultValid)) - validBefore; d != 1 {
		t.Errorf("expected 1 valid probe counted, got %v", d)
	}
	if d := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultMissingURL)) - missingBefore; d != 1 {
		t.Errorf("expected 1 missing url counted, got %v", d)
	}
	if d := testutil.ToFloat64(metrics.ProbesTotal.WithLabelValues(metrics.ResultHTTPError)) - httpBefore; d != 1 {
		t.Errorf("expected 1 http error counted, got %v", d)
	}
	if g := testutil.ToFloat64(metrics.ProbesInFlight); g != 0 {
		t.Errorf("expected in-flight gauge back to 0, got %v", g)
	}
}

func TestNew_Preconditions(t *testing.T) {
	p := probe.New(probe.Options{Timeout: time.Second})
	tests := []struct {
		name string
		opts Options
	}{
		{"zero concurrency", Options{Concurrency: 0, Timeout: time.Second}},
		{"negative concurrency", Options{Concurrency: -1, Timeout: time.Second}},
		{"zero timeout", Options{Concurrency: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			New(p, tt.opts)
		})
	}
}

func TestPartition(t *testing.T) {
	outcomes := []Outcome{
		{Record: plugin.Record{Name: "a"}, Valid: true},
		{Record: plugin.Record{Name: "b"}, Reason: ReasonMissingURL},
		{Record: plugin.Record{Name: "c"}, Valid: true},
		{Record: plugin.Record{Name: "d"}, Reason: "HTTP 404"},
	}
	rs := Partition("desc", outcomes)

	if rs.Desc != "desc" {
		t.Errorf("expected desc preserved, got %q", rs.Desc)
	}
	if len(rs.Valid) != 2 || rs.Valid[0].Name != "a" || rs.Valid[1].Name != "c" {
		t.Errorf("unexpected valid set %+v", rs.Valid)
	}
	if len(rs.Invalid) != 2 || rs.Invalid[0].Record.Name != "b" || rs.Invalid[1].Record.Name != "d" {
		t.Errorf("unexpected invalid set %+v", rs.Invalid)
	}

	doc := rs.Document()
	if doc.Desc != "desc" || len(doc.Plugins) != 2 {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestPartition_NoValidGivesEmptyList(t *testing.T) {
	rs := Partition("", []Outcome{{Reason: "HTTP 500"}})
	if rs.Valid == nil {
		t.Fatal("expected non-nil empty valid list")
	}
}

// blockingProber holds every probe until release is closed.
type blockingProber struct {
	arrived chan struct{}
	release chan struct{}
}

func (p blockingProber) Probe(context.Context, string) probe.Result {
	p.arrived <- struct{}{}
	<-p.release
	return probe.Result{StatusCode: http.StatusOK}
}

func TestValidate_CeilingIsPerBatch(t *testing.T) {
	p := blockingProber{arrived: make(chan struct{}), release: make(chan struct{})}
	base := testutil.ToFloat64(metrics.ProbesInFlight)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := New(p, Options{Concurrency: 1, Timeout: time.Second})
			v.Validate(context.Background(), []plugin.Record{
				{Name: fmt.Sprintf("batch-%d", i), URL: "https://good.example"},
			})
		}(i)
	}
	<-p.arrived
	<-p.arrived

	if g := testutil.ToFloat64(metrics.ProbesInFlight) - base; g != 2 {
		t.Errorf("expected 2 probes in flight across two batches of limit 1, got %v", g)
	}
	close(p.release)
	wg.Wait()

	if g := testutil.ToFloat64(metrics.ProbesInFlight) - base; g != 0 {
		t.Errorf("expected gauge back to baseline, got %v", g)
	}
}
