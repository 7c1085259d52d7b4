// Package prometheus renders magiclink metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts a [magiclink.Engine] and exposes an
// [http.Handler] that renders all magiclink counters and histograms. Counter
// names are prefixed magiclink_*_total; the single histogram is
// magiclink_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
