// Package metadata holds per-metric metadata shared by the transport, the
// rate resolver and the REST API.
//
// Every metric, external or combined, may carry a sampling rate in Hz and a
// free-form object of declared attributes (unit, description, ...). Input
// metrics get their rate from the transport once their source has been
// scraped; combined metrics get it from the configuration or from
// engine.ResolveRates.
package metadata
