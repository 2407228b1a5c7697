// Package http contains the HTTP boundary: request binding and
// validation, response shaping, and the mapping of ledger outcomes onto
// status codes.
//
// Two surfaces exist. The unauthenticated check surface returns HTTP 200
// for every well-formed request and collapses all negative outcomes
// (revoked, unknown device, unknown company, blocked company) into one
// signal, so an anonymous probe cannot learn whether a company or device
// exists. The admin surface is gated by the X-Admin-Token header and
// reports each error kind distinctly as an RFC 7807 problem.
package http
