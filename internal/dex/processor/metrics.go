package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var instructionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dexcore",
		Subsystem: "processor",
		Name:      "instructions_total",
		Help:      "Instructions processed, labelled by instruction and outcome.",
	},
	[]string{"instruction", "outcome"},
)
