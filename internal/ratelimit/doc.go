// Package ratelimit limits bundle requests per client IP.
//
// Each bundle request fans out to the registry once per configured package,
// so the limiter keeps one client from turning the server into a registry
// amplifier. State is in memory and per instance.
package ratelimit
