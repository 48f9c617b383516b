package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: сколько событий каждого вида прошло через диспетчер
	EventsTotal *prometheus.CounterVec

	// Доставки по каналам и исходам
	Deliveries *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - без регистратора метрики уходят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "closegate_notify_events_total",
			Help: "Notification events consumed by kind.",
		}, []string{"kind"}),

		Deliveries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "closegate_notify_deliveries_total",
			Help: "Delivery attempts by channel and status.",
		}, []string{"channel", "status"}), // статусы: sent, failed, skipped
	}
}
