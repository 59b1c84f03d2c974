package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics endpoint.
type Summary struct {
	HTTP      httpSummary              `json:"http"`
	Mirrors   map[string]mirrorSummary `json:"mirrors"`
	FanOut    fanOutSummary            `json:"fanOut"`
	Push      pushInfo                 `json:"push"`
	RateLimit rateLimitInfo            `json:"rateLimit"`
	Auth      authInfo                 `json:"auth"`
	DB        dbInfo                   `json:"db"`
	Server    serverInfo               `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

// mirrorSummary is keyed by mirror name (team, global, customer).
type mirrorSummary struct {
	Written float64 `json:"written"`
	Failed  float64 `json:"failed"`
	Skipped float64 `json:"skipped"`
}

type fanOutSummary struct {
	Total float64 `json:"total"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

type pushInfo struct {
	Sent   float64 `json:"sent"`
	Failed float64 `json:"failed"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summary()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summary gathers the registry into a Summary.
func (m *Metrics) Summary() (Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return Summary{}, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	start := gaugeValue(fam["liftline_server_start_time_seconds"])
	return Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["liftline_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["liftline_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["liftline_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["liftline_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["liftline_http_request_duration_seconds"], 0.99),
		},
		Mirrors: mirrorSummaries(fam["liftline_mirror_writes_total"], fam["liftline_mirror_skips_total"]),
		FanOut: fanOutSummary{
			Total: histogramCount(fam["liftline_fanout_duration_seconds"]),
			P50:   histogramPercentile(fam["liftline_fanout_duration_seconds"], 0.50),
			P95:   histogramPercentile(fam["liftline_fanout_duration_seconds"], 0.95),
		},
		Push: pushInfo{
			Sent:   sumCounterWithLabel(fam["liftline_push_notifications_total"], "status", "ok"),
			Failed: sumCounterWithLabel(fam["liftline_push_notifications_total"], "status", "error"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["liftline_ratelimit_rejections_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["liftline_auth_failures_total"]),
			Successes: sumCounter(fam["liftline_auth_successes_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeWithLabel(fam["liftline_docstore_pool_conns"], "state", poolStateTotal),
			IdleConns:     gaugeWithLabel(fam["liftline_docstore_pool_conns"], "state", poolStateIdle),
			AcquiredConns: gaugeWithLabel(fam["liftline_docstore_pool_conns"], "state", poolStateAcquired),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

func mirrorSummaries(writes, skips *dto.MetricFamily) map[string]mirrorSummary {
	out := make(map[string]mirrorSummary)
	if writes != nil {
		for _, m := range writes.GetMetric() {
			name := labelValue(m, "mirror")
			s := out[name]
			if labelValue(m, "status") == "error" {
				s.Failed += m.GetCounter().GetValue()
			} else {
				s.Written += m.GetCounter().GetValue()
			}
			out[name] = s
		}
	}
	if skips != nil {
		for _, m := range skips.GetMetric() {
			name := labelValue(m, "mirror")
			s := out[name]
			s.Skipped += m.GetCounter().GetValue()
			out[name] = s
		}
	}
	return out
}

// --- Prometheus metric helpers ---

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func sumCounterWithLabel(f *dto.MetricFamily, name, value string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if labelValue(m, name) == value && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func gaugeWithLabel(f *dto.MetricFamily, name, value string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		if labelValue(m, name) == value && m.GetGauge() != nil {
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func histogramCount(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total uint64
	for _, m := range f.GetMetric() {
		if h := m.GetHistogram(); h != nil {
			total += h.GetSampleCount()
		}
	}
	return float64(total)
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		code := labelValue(m, "status_code")
		if len(code) > 0 && code[0] >= '4' {
			errors += v
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Past the last finite bucket.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
