// Package api implements the HTTP REST API of the combinator.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health          state of the process, metric and input counts
//	GET /api/v1/metrics         every combined metric with its latest sample
//	GET /api/v1/metrics/{name}  one combined metric; 404 if unknown
//	GET /api/v1/inputs          every input metric, its rate and consumers
//	GET /api/v1/snapshot        all combined metrics plus generated_at
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Sample values that JSON cannot represent (NaN, ±Inf)
// are encoded as the strings "NaN", "+Inf" and "-Inf".
package api
