// Package notifications delivers episode events via ntfy.
//
// The ntfy implementation posts to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Completion and
// failure messages can be switched off individually; cancellations are never
// announced because the user asked for them.
//
// Pipeline code depends only on the Service interface.
package notifications
