package audio

import (
	"fmt"

	"episodegen/internal/services"
)

// Format describes interleaved little-endian PCM.
type Format struct {
	SampleWidth int // bytes per sample
	FrameRate   int // frames per second
	Channels    int
}

// DefaultFormat is the PCM layout returned by the speech provider.
var DefaultFormat = Format{SampleWidth: 2, FrameRate: 24000, Channels: 1}

// Validate reports unusable format parameters.
func (f Format) Validate() error {
	switch f.SampleWidth {
	case 1, 2, 4:
	default:
		return services.Wrap(services.ErrValidation, "audio", "format", fmt.Sprintf("unsupported sample width %d", f.SampleWidth), nil)
	}
	if f.FrameRate <= 0 {
		return services.Wrap(services.ErrValidation, "audio", "format", fmt.Sprintf("invalid frame rate %d", f.FrameRate), nil)
	}
	if f.Channels <= 0 {
		return services.Wrap(services.ErrValidation, "audio", "format", fmt.Sprintf("invalid channel count %d", f.Channels), nil)
	}
	return nil
}

// FrameSize is the number of bytes in one frame across all channels.
func (f Format) FrameSize() int {
	return f.SampleWidth * f.Channels
}

// Frames returns the number of whole frames in a buffer of size bytes.
func (f Format) Frames(size int) int {
	if f.FrameSize() <= 0 {
		return 0
	}
	return size / f.FrameSize()
}

// DurationSeconds returns floor(frames / frameRate) for a buffer of size bytes.
func (f Format) DurationSeconds(size int) int {
	if f.FrameRate <= 0 {
		return 0
	}
	return f.Frames(size) / f.FrameRate
}

// ffmpegSampleFormat maps the sample width to ffmpeg's raw input format name.
func (f Format) ffmpegSampleFormat() string {
	switch f.SampleWidth {
	case 1:
		return "u8"
	case 4:
		return "s32le"
	default:
		return "s16le"
	}
}
