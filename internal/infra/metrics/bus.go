package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(busSubscribers, busEventsTotal) }

var busSubscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "notification_bus_subscribers",
		Help: "Currently open conversation subscriptions.",
	},
)

var busEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_bus_events_total",
		Help: "Bus events by outcome.",
	},
	[]string{"outcome"}, // 'delivered', 'dropped'
)

func IncBusSubscribers()    { busSubscribers.Inc() }
func DecBusSubscribers()    { busSubscribers.Dec() }
func IncBusEvent(outcome string) { busEventsTotal.WithLabelValues(norm(outcome)).Inc() }
