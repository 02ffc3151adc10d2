// Package models defines the records persisted by the shelfsync client:
// books, their annotations, deletion tombstones, the server identity map,
// and the device's sync configuration.
package models
