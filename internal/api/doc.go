// Package api exposes the JSON HTTP surface: knowledge base and asset
// management, indexing, search and chat.
//
// Routes live under /api/v1 behind a middleware stack of panic recovery,
// request IDs, request logging and per-IP rate limiting. Health probes sit
// outside the stack so orchestrators are never rate limited.
//
// Handlers depend on small consumer interfaces rather than concrete
// services, so each handler is testable with in-memory fakes.
package api
