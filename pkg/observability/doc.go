/*
Package observability turns the engine's lifecycle hooks into Prometheus
metrics and structured log lines.

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LogHooks(logger))
	eng := parley.New(store, transport, parley.WithLifecycleHooks(hooks))
*/
package observability
