package audio

import (
	"context"
	"fmt"

	"episodegen/internal/services"
)

// ContentType is the MIME type of finalized audio.
const ContentType = "audio/mpeg"

// Encoded is a finalized, compressed audio buffer.
type Encoded struct {
	Data            []byte
	DurationSeconds int
	ContentType     string
}

// Size returns the encoded length in bytes.
func (e Encoded) Size() int64 {
	return int64(len(e.Data))
}

// Finalizer converts PCM buffers into Encoded audio.
type Finalizer struct {
	encoder Encoder
}

// NewFinalizer returns a Finalizer backed by encoder, normally a Pool.
func NewFinalizer(encoder Encoder) *Finalizer {
	return &Finalizer{encoder: encoder}
}

// Finalize validates pcm, computes its duration, and encodes it. Empty input
// or empty encoder output fails with services.ErrEmptyAudio.
func (f *Finalizer) Finalize(ctx context.Context, pcm []byte, format Format) (Encoded, error) {
	if err := format.Validate(); err != nil {
		return Encoded{}, err
	}
	if len(pcm) == 0 {
		return Encoded{}, services.Wrap(services.ErrEmptyAudio, "audio", "finalize", "pcm buffer is empty", nil)
	}
	if rem := len(pcm) % format.FrameSize(); rem != 0 {
		return Encoded{}, services.Wrap(
			services.ErrValidation,
			"audio",
			"finalize",
			fmt.Sprintf("pcm length %d is not a multiple of frame size %d", len(pcm), format.FrameSize()),
			nil,
		)
	}

	data, err := f.encoder.Encode(ctx, pcm, format)
	if err != nil {
		return Encoded{}, err
	}
	if len(data) == 0 {
		return Encoded{}, services.Wrap(services.ErrEmptyAudio, "audio", "finalize", "encoder produced no output", nil)
	}
	return Encoded{
		Data:            data,
		DurationSeconds: format.DurationSeconds(len(pcm)),
		ContentType:     ContentType,
	}, nil
}
