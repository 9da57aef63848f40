// Package localstore persists the local ledger replica.
//
// The ledger is kept as three JSON blobs (customers, stock, purchases) in a
// key → blob Store. Blobs are read once at startup and checked against an
// embedded CUE schema; anything missing, unreadable or off-schema is
// replaced by its default so a damaged file never blocks a session. Every
// change rewrites the touched blobs in full.
//
// The SQLite backend runs in WAL mode with user_version migrations.
package localstore
