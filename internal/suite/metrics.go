package suite

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "labfleet_suiterunner_"

var taskSubmissions = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "tasks_submitted_total",
	Help: "Number of child tasks submitted to the queue, including retries",
})

var taskRetries = promauto.NewCounter(prometheus.CounterOpts{
	Name: metricsPrefix + "task_retries_total",
	Help: "Number of child tasks resubmitted after an unsuccessful attempt",
})
