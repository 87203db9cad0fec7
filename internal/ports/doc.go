// Package ports declares the capability interfaces the pipeline consumes:
// chat completion, web search, speech synthesis, blob storage, and the run
// executor. Concrete adapters live under internal/services and
// internal/executor; tests substitute in-package fakes.
package ports
