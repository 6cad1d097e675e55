package notify

import "github.com/prometheus/client_golang/prometheus"

var published = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_events_published_total",
	Help: "Events handed to the external publisher, by outcome",
}, []string{"event", "result"})

func init() {
	prometheus.MustRegister(published)
}
