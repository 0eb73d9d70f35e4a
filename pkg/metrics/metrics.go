package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "socialsignin", Name: "logins_total", Help: "Provider callbacks by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	UsersCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "socialsignin", Name: "users_created_total", Help: "Users created on first login, by provider."},
		[]string{"provider"},
	)
	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "socialsignin", Name: "sessions_total", Help: "Session lifecycle events (created, destroyed, expired, miss)."},
		[]string{"event"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(Logins)
	reg.MustRegister(UsersCreated)
	reg.MustRegister(Sessions)
}
