// Package telemetry records HTTP and booking metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docbook/docbook/internal/platform/events"
)

// Gauge is sampled at scrape time.
type Gauge struct {
	Name  string
	Help  string
	Value func() float64
}

type Metrics struct {
	active   int64
	duration *labeled[*histogram] // method|route|status
	events   *labeled[*int64]     // type|audience
	failures *labeled[*int64]     // type
	gauges   []Gauge
}

func NewMetrics(gauges ...Gauge) *Metrics {
	return &Metrics{
		duration: newLabeled(func() *histogram { return newHistogram(defaultDurationBuckets) }),
		events:   newLabeled(func() *int64 { return new(int64) }),
		failures: newLabeled(func() *int64 { return new(int64) }),
		gauges:   gauges,
	}
}

func labelsKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// Middleware records request duration by route pattern and the number of
// requests in flight.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.duration.get(labelsKey(c.Request().Method, route, strconv.Itoa(status))).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Publisher counts lifecycle events on their way to next. The audience label
// is the topic kind (doctor or patient), so each change counts once per kind.
func (m *Metrics) Publisher(next events.Publisher) events.Publisher {
	return &countingPublisher{m: m, next: next}
}

type countingPublisher struct {
	m    *Metrics
	next events.Publisher
}

func (p *countingPublisher) Publish(ctx context.Context, e events.Event) error {
	audience, _, _ := strings.Cut(e.Topic, ":")
	if err := p.next.Publish(ctx, e); err != nil {
		atomic.AddInt64(p.m.failures.get(e.Type), 1)
		return err
	}
	atomic.AddInt64(p.m.events.get(labelsKey(e.Type, audience)), 1)
	return nil
}

// EventCount returns how many events of type were delivered to audience.
func (m *Metrics) EventCount(eventType, audience string) int64 {
	return atomic.LoadInt64(m.events.get(labelsKey(eventType, audience)))
}

// Handler serves all metrics in Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		durations := m.duration.snapshot()
		for _, key := range sortedKeys(durations) {
			parts := strings.SplitN(key, "|", 3)
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, durations[key])
		}
		b.WriteByte('\n')

		b.WriteString("# HELP http_server_active_requests Number of active HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

		b.WriteString("# HELP booking_events_total Appointment lifecycle events delivered.\n")
		b.WriteString("# TYPE booking_events_total counter\n")
		counts := m.events.snapshot()
		for _, key := range sortedKeys(counts) {
			parts := strings.SplitN(key, "|", 2)
			fmt.Fprintf(&b, "booking_events_total{type=%q,audience=%q} %d\n", parts[0], parts[1], atomic.LoadInt64(counts[key]))
		}
		b.WriteByte('\n')

		b.WriteString("# HELP booking_event_failures_total Appointment events that could not be published.\n")
		b.WriteString("# TYPE booking_event_failures_total counter\n")
		failures := m.failures.snapshot()
		for _, key := range sortedKeys(failures) {
			fmt.Fprintf(&b, "booking_event_failures_total{type=%q} %d\n", key, atomic.LoadInt64(failures[key]))
		}
		b.WriteByte('\n')

		for _, g := range m.gauges {
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n\n", g.Name, g.Help, g.Name, g.Name, g.Value())
		}

		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
