package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	renderedTotal        atomic.Uint64
	renderFailedTotal    atomic.Uint64
	archivedTotal        atomic.Uint64
	archiveFailedTotal   atomic.Uint64
	localSavedTotal      atomic.Uint64
	localSaveFailedTotal atomic.Uint64

	renderDuration = newHistogram([]float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000})

	throttledMu   sync.Mutex
	throttledRole = map[string]uint64{}
)

// IncRenderThrottled counts a render request refused by the rate limiter.
func IncRenderThrottled(role string) {
	if role == "" {
		role = "anonymous"
	}
	throttledMu.Lock()
	throttledRole[role]++
	throttledMu.Unlock()
}

// IncRendered counts a successfully rendered document.
func IncRendered() {
	renderedTotal.Add(1)
}

// IncRenderFailed counts a render that returned an error.
func IncRenderFailed() {
	renderFailedTotal.Add(1)
}

// IncArchived counts a successful archive upload.
func IncArchived() {
	archivedTotal.Add(1)
}

// IncArchiveFailed counts a failed archive upload.
func IncArchiveFailed() {
	archiveFailedTotal.Add(1)
}

// IncLocalSave counts a local save attempt by outcome.
func IncLocalSave(ok bool) {
	if ok {
		localSavedTotal.Add(1)
		return
	}
	localSaveFailedTotal.Add(1)
}

// ObserveRenderDurationMs records a render duration in milliseconds.
func ObserveRenderDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	renderDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "prescription_render_total", "Prescriptions rendered", renderedTotal.Load())
	writeCounter(&buf, "prescription_render_failed_total", "Prescription renders that failed", renderFailedTotal.Load())
	writeCounter(&buf, "prescription_archive_total", "Prescriptions archived", archivedTotal.Load())
	writeCounter(&buf, "prescription_archive_failed_total", "Prescription archive uploads that failed", archiveFailedTotal.Load())
	writeCounter(&buf, "prescription_local_save_total", "Prescriptions saved locally", localSavedTotal.Load())
	writeCounter(&buf, "prescription_local_save_failed_total", "Local saves that failed", localSaveFailedTotal.Load())
	writeRoleCounter(&buf, "prescription_render_throttled_total", "Render requests refused by the rate limiter")
	writeHistogram(&buf, "prescription_render_duration_ms", "Render duration in milliseconds", renderDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeRoleCounter(buf *bytes.Buffer, name, help string) {
	throttledMu.Lock()
	roles := make([]string, 0, len(throttledRole))
	for role := range throttledRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	for _, role := range roles {
		fmt.Fprintf(buf, "%s{role=%q} %d\n", name, role, throttledRole[role])
	}
	throttledMu.Unlock()
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the milliseconds elapsed since start.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
