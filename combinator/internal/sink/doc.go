// Package sink delivers samples emitted by combined metrics.
//
// Chunker implements engine.Sink. It buffers samples per metric until the
// metric's chunk size is reached and then hands the chunk to every
// Publisher: the latest-value store, the websocket hub and PromExporter.
package sink
