// Package wire holds the JSON message types exchanged between the shelfsync
// client and server.
//
// Every response embeds Response so that failures share one envelope:
//
//	{"ok": false, "error": "conflict", "reason": "...", "serverUpdatedAt": 1700000000000}
//
// Timestamps are Unix epoch milliseconds. Zero means "absent" everywhere.
package wire
