package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FramesDropped counts frames a backend discarded instead of delivering.
// Labels:
//   - backend: "memory"
var FramesDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wirechat_bus_frames_dropped_total",
		Help: "Total number of bus frames dropped because a subscriber queue was full",
	},
	[]string{"backend"},
)
