// Package database provides SQLite storage for perf-test history.
//
// Each perf-test run is stored as one row in the perf_tests table, with its
// event timeline encoded as JSON. A small metadata table carries the schema
// version used by migrations.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
