// Package config loads and watches the combinator configuration file.
//
// Top-level types:
//   - Config{Combinator}: full config tree parsed from YAML (or JSON)
//   - CombinatorConfig: ports, latest_ttl, broadcast_interval,
//     scrape_interval, auth, sources [], metrics {}
//   - Source: id, endpoint, scrape_interval, auth, tls; Rate() is the
//     sampling rate announced for the metrics it provides
//   - CombinedMetric: expression document, chunk_size, metadata;
//     Fingerprint() is the canonical expression encoding used to detect
//     unchanged definitions across reloads
//
// Load(path) reads the file, applies defaults, validates structure and
// drops per-metric settings that are invalid but harmless (non-positive
// chunk_size, non-object metadata) with a warning. Expressions themselves are
// validated later by the expr package so that one broken metric does not
// reject the whole file.
//
// Watch(ctx, path, onChange) reloads the file on every write and hands the
// new Config to onChange.
package config
