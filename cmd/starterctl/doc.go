// Command starterctl builds starter archives offline using the same package
// pipeline as the server. Every server config flag is accepted, and unset
// flags fall back to STARTER_* environment variables.
package main
