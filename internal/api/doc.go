// Package api implements the admin HTTP API for the gateway service.
//
// This package provides:
//   - Gateway status listing and lookup, including live connection state
//   - Administrator start/stop of a gateway (retry after ERROR)
//   - Outbound publish through a gateway's transport
//   - Ingestion queue and worker pool statistics
//   - Prometheus scrape endpoint at /metrics
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/gateways
//	GET  /api/v1/gateways/{id}
//	POST /api/v1/gateways/{id}/start
//	POST /api/v1/gateways/{id}/stop
//	POST /api/v1/gateways/{id}/messages
//	GET  /api/v1/ingest/stats
//	GET  /metrics
//
// Passwords never leave the service: gateway.Endpoint hides them from JSON.
package api
