// Package app wires the service together: configuration, logging,
// observability, the persistence store, the ledger, and the HTTP server
// with its middleware chain. cmd/licensegate is a thin shell around
// NewApplication and Run.
package app
