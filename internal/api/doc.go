// Package api hosts the bot-facing HTTP server and the middleware shared with
// the offload worker. Routes:
//   - POST /{token} receives platform webhook updates and always answers "!".
//   - GET / registers the webhook at the configured public URL.
//   - GET /healthz for liveness checks.
//   - GET /metrics for Prometheus scraping.
package api
