package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	samplesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combinator_engine_samples_in_total",
		Help: "Input samples routed into expression trees",
	})

	samplesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combinator_engine_samples_out_total",
		Help: "Samples emitted by combined metrics",
	})

	parseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combinator_engine_parse_failures_total",
		Help: "Combined metric definitions rejected during reconfiguration",
	})

	resolverDeferrals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combinator_engine_resolver_deferrals_total",
		Help: "Times rate resolution postponed a metric waiting on another combined metric",
	})

	registeredTrees = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "combinator_engine_registered_metrics",
		Help: "Combined metrics currently registered",
	})

	feedbackDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "combinator_engine_feedback_dropped_total",
		Help: "Emitted batches not fed back into dependent metrics because the chain was too deep",
	})
)

func init() {
	prometheus.MustRegister(samplesIn)
	prometheus.MustRegister(samplesOut)
	prometheus.MustRegister(parseFailures)
	prometheus.MustRegister(resolverDeferrals)
	prometheus.MustRegister(registeredTrees)
	prometheus.MustRegister(feedbackDropped)
}
