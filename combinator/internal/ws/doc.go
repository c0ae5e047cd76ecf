// Package ws implements the websocket stream of the combinator.
//
// Hub keeps a set of connected clients. It pushes every chunk of samples
// published by a combined metric as it happens, and a full snapshot of all
// combined metrics on connect and every interval.
//
// Messages sent to clients:
//
//	{"event": "snapshot", "data": { /* same schema as GET /api/v1/snapshot */ }}
//	{"event": "samples",  "data": {"metric": "rack.power", "samples": [{"time": "...", "value": 1.5}]}}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/stream.
package ws
