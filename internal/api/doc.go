// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls and /v1/crawls/batch for starting crawl workers.
//   - GET/DELETE /v1/crawls/... for worker status, logs, and teardown.
//   - POST/GET/DELETE /v1/knowledge-bases/... for catalog management.
//   - POST /v1/ask for answering questions across knowledge bases.
package api
