// Package health holds the liveness and readiness probes and their HTTP
// handlers.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness as soon
// as shutdown begins so the load balancer drains the instance before the main
// listener stops accepting bundle requests.
package health
