// Package metrics holds prometheus collectors of the service.
// Collectors are registered in the given registerer, so tests may use their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snapgram"

// Operation names of auth metrics
const (
	OpRegister     = "register"
	OpLogin        = "login"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
	OpGoogleSignIn = "google_signin"
	OpGoogleSignUp = "google_signup"
)

// Results of auth operations
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultBurned   = "burned"
	ResultConflict = "conflict"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

type Auth struct {
	Operations   *prometheus.CounterVec
	IssuedTokens *prometheus.CounterVec
}

func NewAuth(reg prometheus.Registerer) *Auth {
	f := promauto.With(reg)

	return &Auth{
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "operations_total",
				Help:      "Auth operations by outcome",
			},
			[]string{"operation", "result"},
		),
		IssuedTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "issued_tokens_total",
				Help:      "Issued tokens by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *Auth) Observe(operation string, result string) {
	m.Operations.WithLabelValues(operation, result).Inc()
}

// Count both tokens of a freshly issued pair
func (m *Auth) PairIssued() {
	m.IssuedTokens.WithLabelValues("access").Inc()
	m.IssuedTokens.WithLabelValues("refresh").Inc()
}

type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)

	return &HTTP{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"path", "method", "code"},
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
}
