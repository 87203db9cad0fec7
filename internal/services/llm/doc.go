// Package llm provides an OpenRouter-compatible chat completion client.
//
// Research passes a web_search tool and the client runs the tool-call loop
// itself: each requested call goes through the tool's handler and the result
// is fed back, for at most MaxToolRounds rounds, after which the model must
// answer without tools. Compose sends a JSON schema as response_format.
// Usage is summed over every round.
//
// Errors unwrap to the services markers so failure markers can classify them:
// 401/403 as configuration, 408 and network timeouts as timeout, 429/5xx as
// transient. Those, plus empty replies, are retried with exponential backoff.
package llm
