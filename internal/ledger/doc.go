// Package ledger implements the license authorization ledger, the single
// source of truth for company and device state transitions.
//
// # Architecture Overview
//
// The ledger sits between the HTTP boundary and the persistence store:
//
//	- Ledger: validates transitions (authorize, revoke, check-in) and
//	  enforces uniqueness and company scoping invariants
//	- Store: durable storage with atomic per-key read-modify-write
//	- CheckResult: the normal-outcome enum returned by Check
//
// # State Machine
//
// A device is either authorized or revoked. There is no pending state:
// authorization is an explicit admin act, never a self-registration flow.
// Both transitions are legal in either direction across directives and
// idempotent when repeated:
//
//	authorized -> revoked   (RevokeDevice)
//	revoked    -> authorized (AuthorizeDevice, revoked_at preserved)
//
// A check never creates or authorizes a device. On an authorized outcome
// it records the check-in time as a side effect of the same atomic
// read-modify-write that observed the status, so a concurrent revoke can
// never be interleaved between the read and the write.
//
// # Concurrency
//
// Operations on distinct (company_key, device_id) pairs run fully in
// parallel. Operations on the same pair serialize at the store layer,
// which must resolve races to a single well-defined final state. The
// ledger holds no shared mutable state of its own and no caches; every
// decision is read from the store.
package ledger
