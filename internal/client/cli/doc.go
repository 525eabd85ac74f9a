// Package cli implements the interactive TripKeeper client.
//
// The REPL reads one command per line. Commands that create or edit records
// take references as arguments and prompt for the remaining fields in
// name=value form, one per line, until an empty line. Everything is written
// to the local store first; the background connectivity watcher starts a
// sync pass whenever the server becomes reachable, and "sync" starts one on
// demand.
package cli
