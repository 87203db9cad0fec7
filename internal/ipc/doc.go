// Package ipc is the HTTP client the CLI uses to talk to a running daemon.
//
// Requests and responses reuse the DTOs from internal/api so the wire format
// stays in one place. Dial probes the status endpoint with a short timeout so
// commands can fall back to direct store access when no daemon is listening.
package ipc
