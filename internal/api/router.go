package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/auth"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(RequestCounter, RequestDuration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(recorder.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// SetupRouter wires every route. The webpay return stays public: the gateway
// redirects the buyer's browser there without our bearer token.
func SetupRouter(h *Handler, metricsHandler http.Handler, jwtSecret string) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)
	r.HandleFunc("/webpay/return", h.WebpayReturn).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/properties", h.GetProperty).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth.Middleware(jwtSecret))

	protected.HandleFunc("/purchases", h.CreatePurchase).Methods(http.MethodPost)
	protected.HandleFunc("/purchases", h.ListReservations).Methods(http.MethodGet)
	protected.HandleFunc("/purchases/{request_id}", h.GetReservation).Methods(http.MethodGet)
	protected.HandleFunc("/purchases/{request_id}/retry", h.RetryPurchase).Methods(http.MethodPost)

	protected.HandleFunc("/schedules", h.ListSchedules).Methods(http.MethodGet)
	protected.HandleFunc("/schedules/{id}", h.UpdateSchedule).Methods(http.MethodPatch)

	protected.HandleFunc("/auctions", h.OpenAuction).Methods(http.MethodPost)
	protected.HandleFunc("/auctions", h.ListAuctions).Methods(http.MethodGet)
	protected.HandleFunc("/auctions/{auction_uuid}/proposals", h.Propose).Methods(http.MethodPost)
	protected.HandleFunc("/auctions/{auction_uuid}/proposals", h.ListProposals).Methods(http.MethodGet)
	protected.HandleFunc("/proposals/{proposal_uuid}/accept", h.AcceptProposal).Methods(http.MethodPost)
	protected.HandleFunc("/proposals/{proposal_uuid}/reject", h.RejectProposal).Methods(http.MethodPost)

	return r
}
