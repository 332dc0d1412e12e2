// Package runstore records averaging runs in a sqlite database: one row per
// run, one per completed iteration, and one per group warning or failure.
// The schema is managed with embedded golang-migrate migrations.
package runstore
