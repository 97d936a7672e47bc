package metrics

import (
	"github.com/go-while/checkweb/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// cacheCollector reads cache.Stats on every scrape
type cacheCollector struct {
	client  cache.Client
	entries *prometheus.Desc
	size    *prometheus.Desc
	hits    *prometheus.Desc
	misses  *prometheus.Desc
}

func newCacheCollector(client cache.Client) *cacheCollector {
	labels := []string{"provider"}
	return &cacheCollector{
		client:  client,
		entries: prometheus.NewDesc(namespace+"_cache_entries", "Entries held by the cache client", labels, nil),
		size:    prometheus.NewDesc(namespace+"_cache_size_bytes", "Estimated bytes held by the cache client", labels, nil),
		hits:    prometheus.NewDesc(namespace+"_cache_hits_total", "Cache lookups that found a value", labels, nil),
		misses:  prometheus.NewDesc(namespace+"_cache_misses_total", "Cache lookups that found nothing", labels, nil),
	}
}

func (cc *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cc.entries
	ch <- cc.size
	ch <- cc.hits
	ch <- cc.misses
}

func (cc *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s := cc.client.Stats()
	// -1 means the backend cannot tell
	if s.Entries >= 0 {
		ch <- prometheus.MustNewConstMetric(cc.entries, prometheus.GaugeValue, float64(s.Entries), s.Provider)
	}
	if s.Size >= 0 {
		ch <- prometheus.MustNewConstMetric(cc.size, prometheus.GaugeValue, float64(s.Size), s.Provider)
	}
	ch <- prometheus.MustNewConstMetric(cc.hits, prometheus.CounterValue, float64(s.Hits), s.Provider)
	ch <- prometheus.MustNewConstMetric(cc.misses, prometheus.CounterValue, float64(s.Misses), s.Provider)
}
