// Package store persists podcasts, episodes, and their generated artifacts in
// SQLite.
//
// Episodes carry the run state machine (status and step). Every transition is
// a single conditional UPDATE guarded by the expected current state, so
// concurrent cancel, fail, and advance calls can never overwrite a terminal
// status. Content and audio artifacts hang off an episode and are removed with
// it through ON DELETE CASCADE.
//
// Lookups return (nil, nil) when a row does not exist; callers decide whether
// absence is an error.
package store
