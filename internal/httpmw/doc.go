// Package httpmw provides HTTP middleware for the public bundle server.
//
// httpserver.NewHandler composes them outermost first: recover, security
// headers, request ID, client IP, rate limiting, tracing, trace headers,
// metrics, request logger, then the chi router with route annotation, access
// log and body limit.
//
// Query strings and user agents are not logged.
package httpmw
