// Package scraper is the input transport of the combinator. It polls
// Prometheus text endpoints and turns what it reads into input samples.
//
// Every metric family yields a sample named after the family, holding the
// sum of all its series (counters, gauges and untyped values). Families with
// labelled series additionally yield one sample per series, named in
// exposition syntax: family{label="value",...} with labels sorted by name.
// Only subscribed names are delivered.
//
// Each source announces its metrics with a sampling rate of
// 1/scrape_interval. Once every source has been scraped at least once the
// transport reports itself ready, which is when rate resolution can run.
//
// Authentication (mTLS, API key, bearer token, basic) is handled by the
// shared authRoundTripper in client.go.
package scraper
