// Package upstream fetches the pages archive with a single HTTP GET. The
// Fetcher itself never retries; retry policy belongs to whoever builds the
// *http.Client (NewClient wires go-retryablehttp when MaxRetries > 0).
package upstream
