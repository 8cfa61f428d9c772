package remote

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tern",
		Name:      "remote_clients_connected",
		Help:      "Number of attached event-stream clients.",
	})
	metricEventsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tern",
		Name:      "remote_events_broadcast_total",
		Help:      "Events broadcast to attached clients.",
	})
	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tern",
		Name:      "remote_events_dropped_total",
		Help:      "Events dropped because a client could not keep up.",
	})
	metricInputInjected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tern",
		Name:      "remote_input_injected_total",
		Help:      "Input lines injected through the remote API.",
	})
	metricCancelRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tern",
		Name:      "remote_cancel_requests_total",
		Help:      "Cancellation requests received through the remote API.",
	})
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.PublicMetrics && !s.authorized(r) {
		respondError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}
