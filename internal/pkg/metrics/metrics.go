package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChainScanHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portfolio",
			Name:      "chain_scan_seconds",
			Help:      "Time taken to scan one chain for a wallet",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"chain", "error"},
	)

	RPCRetriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "rpc_retries_total",
			Help:      "Number of RPC call retries per chain and operation",
		},
		[]string{"chain", "operation"},
	)

	EndpointFailoversCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "endpoint_failovers_total",
			Help:      "Number of times an endpoint was given up on and the next one tried",
		},
		[]string{"chain"},
	)

	CacheEventsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "call_cache_events_total",
			Help:      "Call cache hits and misses per call class",
		},
		[]string{"class", "event"},
	)

	PriceLookupsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "price_lookups_total",
			Help:      "Resolved and missed token price lookups per source",
		},
		[]string{"source", "status"},
	)

	HTTPRequestsHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portfolio",
			Name:      "http_request_seconds",
			Help:      "Time taken to serve API requests",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)
)

func CollectChainScan(chain string, err error, start time.Time) {
	ChainScanHistogram.
		WithLabelValues(chain, errLabelValue(err)).
		Observe(time.Since(start).Seconds())
}

func CollectRPCRetry(chain, operation string) {
	RPCRetriesCounter.WithLabelValues(chain, operation).Inc()
}

func CollectEndpointFailover(chain string) {
	EndpointFailoversCounter.WithLabelValues(chain).Inc()
}

func CollectCacheHit(class string) {
	CacheEventsCounter.WithLabelValues(class, "hit").Inc()
}

func CollectCacheMiss(class string) {
	CacheEventsCounter.WithLabelValues(class, "miss").Inc()
}

func CollectPriceLookups(source string, resolved, missed int) {
	if resolved > 0 {
		PriceLookupsCounter.WithLabelValues(source, "resolved").Add(float64(resolved))
	}
	if missed > 0 {
		PriceLookupsCounter.WithLabelValues(source, "missed").Add(float64(missed))
	}
}

func CollectHTTPRequest(method, path string, status int, start time.Time) {
	HTTPRequestsHistogram.
		WithLabelValues(method, path, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}

// errLabelValue returns string representation of error label value
func errLabelValue(err error) string {
	if err != nil {
		return "true"
	}
	return "false"
}
