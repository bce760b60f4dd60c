// Package metric wraps a Prometheus registry with the core tensile pipeline
// metrics and serves them over HTTP.
//
// Components take a *Metrics that may be nil. Component-specific metrics
// are registered through MetricsRegistrar under a service name:
//
//	registry := metric.NewMetricsRegistry()
//	stream := ingest.New(source, aggregator, ingest.Deps{Metrics: registry.CoreMetrics()})
//	server := metric.NewServer(9090, "/metrics", registry)
//	_ = server.Start()
package metric
