// Package services defines shared utilities consumed by the pipeline stages
// and external provider adapters.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, run references, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so the pipeline controller
//     can classify failures without inspecting provider-specific errors.
//
// Provider adapters live in subpackages (llm, search, tts, blob) and return
// errors tagged with these markers.
package services
