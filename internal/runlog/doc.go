// Package runlog keeps an SQLite audit ledger of validation, targeting, and
// fidelity runs. The ledger is append-only and never consulted by the
// pipelines themselves.
package runlog
