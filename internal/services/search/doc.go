// Package search queries the Exa web search API for the research stage.
//
// Results include page text, trimmed to a configured number of characters so
// tool responses stay small enough to feed back to the model.
package search
