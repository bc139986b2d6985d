// Package store provides persistence for scripts, execution history and
// sealed credentials.
//
// The Store interface is backed by GORM, so the same code runs against
// PostgreSQL in production and an in-memory SQLite database in tests.
package store
