// Package api implements the HTTP REST API and WebSocket server for Gray Logic Notify.
//
// This package provides:
//   - Auth endpoints for registration, login and the gateway authorizer
//   - Entity endpoints whose writes fan out to subscribers
//   - A WebSocket hub that feeds connection events to the lifecycle handler
//     and acts as the local delivery channel
//   - The /@connections management endpoint used by HTTP delivery
//   - Middleware (request ID, logging, recovery, metrics, CORS, rate limiting)
//
// # Security
//
// Entity endpoints require a bearer token with scope "self" whose subject
// matches the entity id. WebSocket clients authenticate on $connect with the
// Authorization header or a token query parameter. Auth endpoints are rate
// limited per client IP.
package api
