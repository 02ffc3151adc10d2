// Package engine runs synchronization in the background: it debounces local
// changes into sync requests, keeps the periodic tick armed on the durable
// job queue, executes queued runs, and switches all of it on and off as the
// server configuration changes.
package engine
