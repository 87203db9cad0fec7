// Package daemon coordinates the long-running episodegen process.
//
// It wires configuration, episode storage, the run executor, and the pipeline
// controller into a single lifecycle with flock-based locking to prevent
// multiple instances against the same database. On start it relaunches runs
// left live by a previous process and keeps reclaiming runs whose heartbeat
// went stale. The HTTP API and the Prometheus endpoint are served from here.
//
// Keep orchestration logic here: stage behavior lives in internal/stages and
// run state transitions in internal/pipeline.
package daemon
