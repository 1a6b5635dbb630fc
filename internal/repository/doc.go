// Package repository defines the data access interfaces for dctwin.
//
// The inventory model (sites, rooms, racks, devices), the append-only
// equipment history and saved anomalies are reached through a Store, which
// hands out transactions. Every read-check-write sequence of the lifecycle
// engine runs inside one Store.WithTx call so two concurrent moves cannot
// both pass conflict detection against a stale read.
//
// # SQL Implementation
//
// The sqlstore subpackage implements Store on database/sql with two dialects:
//
// - sqlite (modernc.org/sqlite): single writer connection, WAL journal
// - postgres (github.com/lib/pq): SERIALIZABLE transactions, retried on
// serialization failure
//
// # Schema Migration
//
// sqlstore creates its schema on startup with CREATE TABLE IF NOT EXISTS.
//
// # Testing
//
// sqlstore is tested against in-memory SQLite databases and, for rollback
// paths, against go-sqlmock.
package repository
