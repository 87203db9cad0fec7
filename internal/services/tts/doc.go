// Package tts renders episode transcripts to raw PCM.
//
// Two providers are available. The gemini provider sends the whole
// transcript in one request and lets the model voice each "Speaker N" tag
// with the mapped prebuilt voice (24 kHz PCM). The polly provider splits the
// transcript into speaker turns, synthesizes each turn with Amazon Polly
// (16 kHz PCM), and concatenates the results.
package tts
