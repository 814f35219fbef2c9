// perf.go implements the perf checker (spec §4.6 "perf: plots
// latency/throughput (non-safety; always valid)"). Plot rendering
// itself is out of scope (spec §1); instead of the teacher's own
// dependency on prometheus/common (used there only for its deprecated
// log shim, pkg/mcast/core/transport.go), this generalizes the same
// dependency into its better-fitting domain use: rendering per-:f
// latency summaries as a Prometheus text-exposition snapshot, the
// rate.txt-equivalent artifact named in §6.
package checker

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"google.golang.org/protobuf/proto"

	"github.com/jabolina/maelstrom-go/internal/history"
)

// Perf accumulates per-:f latency samples, derived by pairing each
// :invoke entry with its process's next completing entry.
type Perf struct {
	mu      sync.Mutex
	samples map[string][]float64 // f -> observed latencies, in seconds
}

// NewPerf returns an empty Perf accumulator.
func NewPerf() *Perf { return &Perf{samples: make(map[string][]float64)} }

// Observe records one latency sample for f.
func (p *Perf) Observe(f string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[f] = append(p.samples[f], d.Seconds())
}

// RecordHistory derives a latency sample for every invoke/completion
// pair in entries, matched per-process (spec §5: a client has at most
// one outstanding request, so its next entry after an invoke is always
// that invoke's own completion).
func (p *Perf) RecordHistory(entries []history.Entry) {
	pending := map[int]history.Entry{}
	for _, e := range entries {
		if e.Type == history.Invoke {
			pending[e.Process] = e
			continue
		}
		if inv, ok := pending[e.Process]; ok {
			delete(pending, e.Process)
			p.Observe(e.F, time.Duration(e.Time-inv.Time))
		}
	}
}

// Snapshot renders every :f's accumulated samples as a Prometheus
// summary metric family in text exposition format.
func (p *Perf) Snapshot() (string, error) {
	p.mu.Lock()
	fs := make(map[string][]float64, len(p.samples))
	for f, s := range p.samples {
		fs[f] = append([]float64(nil), s...)
	}
	p.mu.Unlock()

	names := make([]string, 0, len(fs))
	for f := range fs {
		names = append(names, f)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, f := range names {
		samples := fs[f]
		sort.Float64s(samples)
		mf := summaryFamily(metricName(f), samples)
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", fmt.Errorf("rendering latency summary for %q: %w", f, err)
		}
	}
	return buf.String(), nil
}

// Check reports the checker's own always-valid verdict, carrying the
// rendered snapshot as supporting detail (spec §4.6 "always valid").
func (p *Perf) Check() Result {
	snapshot, err := p.Snapshot()
	details := map[string]interface{}{"__checker": "perf"}
	if err != nil {
		details["error"] = err.Error()
	} else {
		details["snapshot"] = snapshot
	}
	return Result{Valid: "true", Details: details}
}

// metricName turns a workload :f (e.g. "txn-list-append") into a valid
// Prometheus metric name, validated with model.IsValidMetricName
// rather than a hand-rolled character class check.
func metricName(f string) string {
	name := "maelstrom_op_latency_seconds"
	sanitized := make([]rune, 0, len(f))
	for _, r := range f {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sanitized = append(sanitized, r)
		default:
			sanitized = append(sanitized, '_')
		}
	}
	candidate := name + "_" + string(sanitized)
	if model.IsValidMetricName(model.LabelValue(candidate)) {
		return candidate
	}
	return name
}

func summaryFamily(name string, sortedSeconds []float64) *dto.MetricFamily {
	count := uint64(len(sortedSeconds))
	var sum float64
	for _, v := range sortedSeconds {
		sum += v
	}

	quantiles := make([]*dto.Quantile, 0, 3)
	for _, q := range []float64{0.5, 0.9, 0.99} {
		quantiles = append(quantiles, &dto.Quantile{
			Quantile: proto.Float64(q),
			Value:    proto.Float64(percentile(sortedSeconds, q)),
		})
	}

	mtype := dto.MetricType_SUMMARY
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String("observed per-operation RPC latency, in seconds"),
		Type: &mtype,
		Metric: []*dto.Metric{{
			Summary: &dto.Summary{
				SampleCount: proto.Uint64(count),
				SampleSum:   proto.Float64(sum),
				Quantile:    quantiles,
			},
		}},
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
