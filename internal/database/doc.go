// Package database opens the SQL stores bar series are written to.
//
// TimescaleDB (or plain PostgreSQL) is reached through a pgx pool; local
// runs can use a single-file SQLite database instead.
package database
