// Package metrics provides Prometheus instrumentation for the bot.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

var (
	// Cycles counts evaluation cycles by result.
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_cycles_total",
		Help: "Evaluation cycles run",
	}, []string{"result"})

	// CycleDuration tracks evaluation cycle latency.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratbot_cycle_duration_seconds",
		Help:    "Evaluation cycle duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// Opportunities counts strategy output, partitioned by what happened to it.
	Opportunities = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_opportunities_total",
		Help: "Opportunities produced by strategies",
	}, []string{"strategy", "outcome"})

	// RiskRejections counts rejected opportunities by the failing check.
	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_risk_rejections_total",
		Help: "Opportunities rejected by the risk manager",
	}, []string{"check"})

	// Transitions counts position state transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_position_transitions_total",
		Help: "Position state transitions",
	}, []string{"strategy", "state"})

	// RealizedPnL sums realized profit by strategy. Counters cannot go down,
	// so this is a gauge.
	RealizedPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratbot_realized_pnl_usd",
		Help: "Realized PnL in USD",
	}, []string{"strategy"})

	// Exposure tracks the sum of live notionals.
	Exposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratbot_exposure_usd",
		Help: "Total live exposure in USD",
	})

	// Balance tracks the ledger balance.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratbot_balance_usd",
		Help: "Current ledger balance in USD",
	})

	// OpenPositions tracks PENDING plus OPEN positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratbot_open_positions",
		Help: "Live positions",
	})

	// DrawdownTripped is 1 once the kill-switch latch trips.
	DrawdownTripped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratbot_drawdown_tripped",
		Help: "1 when the drawdown kill-switch has tripped",
	})

	// FeedTicks counts accepted ticker updates per symbol.
	FeedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_feed_ticks_total",
		Help: "Accepted price feed updates",
	}, []string{"symbol"})

	// WebSocketClients tracks connected dashboard clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratbot_websocket_clients",
		Help: "Connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratbot_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratbot_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveAccount updates the account gauges.
func ObserveAccount(a domain.AccountState) {
	Exposure.Set(a.TotalExposureUSD)
	Balance.Set(a.CurrentBalance)
	OpenPositions.Set(float64(a.OpenPositionCount))
	if a.DrawdownTripped {
		DrawdownTripped.Set(1)
	} else {
		DrawdownTripped.Set(0)
	}
}

// ObserveEvent records one ledger transition.
func ObserveEvent(_ context.Context, ev domain.TradeEvent) error {
	Transitions.WithLabelValues(ev.Strategy, string(ev.State)).Inc()
	if ev.RealizedPnL != nil {
		RealizedPnL.WithLabelValues(ev.Strategy).Add(*ev.RealizedPnL)
	}
	return nil
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
