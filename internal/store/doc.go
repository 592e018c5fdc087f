// Package store holds the live per-file scores kept by the serve command.
// It is a thread-safe map keyed by path: the watcher writes to it and the
// HTTP API and WebSocket hub read consistent copies from it.
package store
