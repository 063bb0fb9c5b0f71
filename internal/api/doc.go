// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the current crawl run.
//   - GET /v1/search?q= for the read path, when a searcher is configured.
package api
