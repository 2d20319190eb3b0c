// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "buckle"

// Metrics counts cache outcomes.
type Metrics struct {
	// Hits counts requests served from a verified cache entry.
	Hits prometheus.Counter
	// Misses counts requests that had to download.
	Misses prometheus.Counter
	// Busts counts cache entries removed after failing verification.
	Busts prometheus.Counter
	// Shared counts requests that attached to a download already in flight.
	Shared prometheus.Counter
	// Bytes counts bytes downloaded.
	Bytes prometheus.Counter
}

// NewMetrics creates the cache counters and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		Hits:   counter("hits_total", "Number of downloads served from a verified cache entry."),
		Misses: counter("misses_total", "Number of downloads that reached the network."),
		Busts:  counter("busts_total", "Number of cache entries removed after failing hash verification."),
		Shared: counter("shared_total", "Number of downloads attached to one already in flight."),
		Bytes:  counter("downloaded_bytes_total", "Number of bytes downloaded into the cache."),
	}
}
