package advisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shiftsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shiftadvisor_shifts_logged_total",
		Help: "Total number of shifts appended to a log.",
	})
	shiftsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shiftadvisor_shifts_rejected_total",
		Help: "Total number of shifts that failed validation or storage.",
	})
	trainings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftadvisor_trainings_total",
		Help: "Total number of training requests by result.",
	}, []string{"result"})
	trainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shiftadvisor_training_duration_seconds",
		Help:    "Duration of a training request.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})
	predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftadvisor_predictions_total",
		Help: "Total number of best-hour requests by result.",
	}, []string{"result"})
)
