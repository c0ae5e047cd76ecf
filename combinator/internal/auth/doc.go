// Package auth provides API key authentication for the combinator's own
// endpoints.
//
// APIKeyInterceptor and APIKeyStreamInterceptor guard the gRPC health
// service; APIKeyMiddleware guards the REST API and the websocket stream.
// When mode != "apikey" or key == "", everything passes through (useful for
// local development with auth disabled).
package auth
