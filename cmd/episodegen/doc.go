// Command episodegen runs the episode generation daemon and talks to it.
//
// `serve` starts the daemon and its HTTP API. Episode and podcast commands go
// through that API; read-only commands fall back to the local database when no
// daemon answers. `generate` runs one episode in-process and waits for it.
package main
