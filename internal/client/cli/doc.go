// Package cli implements the shelfsync command-line client.
//
// The root command loads configuration, and each subcommand opens an App
// (store, vault, logger and local services) for its own lifetime:
//
//	shelfsync configure --server https://sync.example --user reader --every 15
//	shelfsync import ~/Books/dune.epub --title Dune
//	shelfsync daemon
//	shelfsync sync
//
// The daemon runs the Coordinator, the durable job runner and the library
// watcher until interrupted. Every other command is a single foreground
// action against the local store or the server.
package cli
