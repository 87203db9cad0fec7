// Package audio turns raw PCM from a speech provider into a stored MP3.
//
// Finalize validates the buffer, computes its duration from the PCM format,
// and encodes it through an Encoder. Encoding is CPU bound, so callers wrap
// the encoder in a Pool that bounds how many encodes run at once and lets the
// caller give up through its context. Upload is a separate step that writes
// the encoded bytes under a deterministic object key, overwriting any earlier
// attempt for the same episode.
package audio
