package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"token-trading-engine/internal/logging"
)

// Metrics holds all Prometheus metrics for the trading engine
type Metrics struct {
	PatternsDetected *prometheus.CounterVec // labels: pattern_type
	AlertsTriggered  *prometheus.CounterVec // labels: alert_type
	TradesExecuted   *prometheus.CounterVec // labels: side

	PortfolioValue  prometheus.Gauge
	PortfolioPnL    prometheus.Gauge
	OpenPositions   prometheus.Gauge
	ClosedTrades    prometheus.Gauge

	RiskLimitBreaches *prometheus.CounterVec // labels: limit_type
	StopLossTriggers  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		PatternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_patterns_detected_total",
			Help: "Patterns detected and published, by pattern type",
		}, []string{"pattern_type"}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_alerts_triggered_total",
			Help: "Scanner alerts fired, by alert type",
		}, []string{"alert_type"}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_trades_executed_total",
			Help: "Simulated trades applied to the portfolio, by side",
		}, []string{"side"}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_portfolio_value",
			Help: "Mark-to-market portfolio value from the last monitoring tick",
		}),
		PortfolioPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_portfolio_pnl",
			Help: "Cumulative realized P&L",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_open_positions",
			Help: "Positions with a non-zero amount",
		}),
		ClosedTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_closed_trades",
			Help: "Closed trade count from the last monitoring tick",
		}),
		RiskLimitBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_risk_limit_breaches_total",
			Help: "Risk limit breach notifications, by limit type",
		}, []string{"limit_type"}),
		StopLossTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_stop_loss_triggers_total",
			Help: "Positions force-closed by the risk monitor",
		}),
	}

	prometheus.MustRegister(
		m.PatternsDetected,
		m.AlertsTriggered,
		m.TradesExecuted,
		m.PortfolioValue,
		m.PortfolioPnL,
		m.OpenPositions,
		m.ClosedTrades,
		m.RiskLimitBreaches,
		m.StopLossTriggers,
	)
	return m
}

// Server exposes /metrics over HTTP
type Server struct {
	srv *http.Server
	log *logging.Logger
}

func NewServer(addr string, log *logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log.WithComponent("metrics"),
	}
}

func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server failed")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
