package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	workflowDispatcher = "workflow_dispatcher"

	// Job metrics
	jobsTotal      = "jobs_total"
	jobsInProgress = "jobs_in_progress"

	// Remote API metrics
	remoteCallsTotal = "remote_calls_total"

	// Labels
	jobStateLabel         = "state"
	remoteOperationLabel  = "operation"
	remoteCallResultLabel = "result"
)

// Results of a remote call.
const (
	ResultOK            = "ok"
	ResultHTTPError     = "http_error"
	ResultTransportFail = "transport_error"
)

var jobsTotalLabels = []string{
	jobStateLabel,
}

var remoteCallsTotalLabels = []string{
	remoteOperationLabel,
	remoteCallResultLabel,
}

/**
* Metrics definition
**/
var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowDispatcher,
		Name:      jobsTotal,
		Help:      "number of jobs retired, partitioned by terminal state",
	},
	jobsTotalLabels,
)

var remoteCallsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowDispatcher,
		Name:      remoteCallsTotal,
		Help:      "number of calls made to the remote run service",
	},
	remoteCallsTotalLabels,
)

var jobsInProgressMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: workflowDispatcher,
		Name:      jobsInProgress,
		Help:      "number of registered jobs currently owned by the polling stage",
	},
)

func IncreaseJobsTotalMetric(state string) {
	labels := prometheus.Labels{
		jobStateLabel: state,
	}
	jobsTotalMetric.With(labels).Inc()
}

func IncreaseRemoteCallsMetric(operation, result string) {
	labels := prometheus.Labels{
		remoteOperationLabel:  operation,
		remoteCallResultLabel: result,
	}
	remoteCallsTotalMetric.With(labels).Inc()
}

func IncreaseJobsInProgressMetric() {
	jobsInProgressMetric.Inc()
}

func DecreaseJobsInProgressMetric() {
	jobsInProgressMetric.Dec()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(remoteCallsTotalMetric)
	prometheus.MustRegister(jobsInProgressMetric)
}
