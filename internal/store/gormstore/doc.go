// Package gormstore implements ledger.Store on a relational database via
// GORM. Two durable backends are supported: an embedded SQLite file
// (pure-Go driver, WAL mode) and PostgreSQL. Purely in-memory DSNs are
// for tests only; production deployments must point the DSN at a medium
// that survives restart.
//
// Per-key atomicity is provided by wrapping every device mutation in one
// database transaction that locks the device row (SELECT ... FOR UPDATE
// on PostgreSQL, immediate write transactions on SQLite). Contention is
// never retried here; it surfaces as ledger.ErrTransientStore and the
// caller decides whether to retry.
package gormstore
