package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionsActive tracks sessions connected to this process.
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wirechat_connections_active",
		Help: "Number of client connections held by this process",
	})

	// messagesRelayed counts chat messages accepted for fanout.
	// Labels:
	//   - origin: "client" or "server"
	messagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_messages_relayed_total",
			Help: "Total number of chat messages published to rooms",
		},
		[]string{"origin"},
	)

	// messagesRejected counts newMessage events from non-members.
	messagesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_messages_rejected_total",
		Help: "Total number of chat messages dropped because the sender was not in the room",
	})

	// deliveriesDropped counts events lost to full outbound queues.
	deliveriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wirechat_deliveries_dropped_total",
		Help: "Total number of events dropped because a client queue was full",
	})

	// storeErrors counts failed presence store operations.
	// Labels:
	//   - op: "create", "get", "set_nickname", "delete"
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_presence_store_errors_total",
			Help: "Total number of failed presence store operations",
		},
		[]string{"op"},
	)

	// busErrors counts failed publishes and undecodable frames.
	busErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_bus_errors_total",
			Help: "Total number of bus publish or decode failures",
		},
		[]string{"stage"},
	)
)
