// Package stages implements the three generation stages.
//
// Research asks the LLM to gather material with a web_search tool backed by
// the search port. Compose turns that material into a title, summary, and
// script under a JSON schema. Voice renders the script through the TTS port,
// finalizes the PCM to MP3, and uploads it under the episode's object key.
//
// Stages never touch the store. They return a stage.Output and the pipeline
// controller persists the allowed effect.
package stages
