// Package api defines the transport payloads shared by the daemon's HTTP
// server, the CLI client, and direct store access.
//
// Store records are converted into these DTOs so every consumer renders the
// same field names and timestamp format. Only the fields exposed upward are
// included: status, step, run reference, title, summary, transcript, object
// key, and duration, plus the request that created the episode.
package api
