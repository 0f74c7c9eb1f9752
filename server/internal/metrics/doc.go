// Package metrics holds the relay's Prometheus collectors in a private
// registry, served at /metrics and summarised for GET /api/v1/stats.
package metrics
