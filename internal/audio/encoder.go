package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/semaphore"

	"episodegen/internal/services"
)

// Encoder compresses raw PCM into MP3 bytes.
type Encoder interface {
	Encode(ctx context.Context, pcm []byte, format Format) ([]byte, error)
}

// DefaultBitrate is the fixed MP3 bitrate.
const DefaultBitrate = "128k"

// FFmpegEncoder pipes PCM through an ffmpeg subprocess, reading raw samples on
// stdin and writing MP3 to stdout.
type FFmpegEncoder struct {
	Binary  string
	Bitrate string
}

// NewFFmpegEncoder returns an encoder for the given binary and bitrate, with
// defaults applied to empty values.
func NewFFmpegEncoder(binary, bitrate string) *FFmpegEncoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	bitrate = strings.TrimSpace(bitrate)
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	return &FFmpegEncoder{Binary: binary, Bitrate: bitrate}
}

// Encode runs ffmpeg once for the whole buffer.
func (e *FFmpegEncoder) Encode(ctx context.Context, pcm []byte, format Format) ([]byte, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", format.ffmpegSampleFormat(),
		"-ar", strconv.Itoa(format.FrameRate),
		"-ac", strconv.Itoa(format.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", e.Bitrate,
		"-f", "mp3",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Stdin = bytes.NewReader(pcm)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(
			services.ErrExternalService,
			"audio",
			"ffmpeg encode",
			strings.TrimSpace(stderr.String()),
			err,
		)
	}
	return stdout.Bytes(), nil
}

// Pool bounds concurrent encodes. Each encode runs on its own goroutine so a
// caller whose context ends stops waiting without tying up its scheduler.
type Pool struct {
	encoder Encoder
	sem     *semaphore.Weighted
}

// NewPool wraps encoder with a limit of workers concurrent encodes.
func NewPool(encoder Encoder, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{encoder: encoder, sem: semaphore.NewWeighted(int64(workers))}
}

type encodeResult struct {
	data []byte
	err  error
}

// Encode waits for a free worker, then runs the wrapped encoder.
func (p *Pool) Encode(ctx context.Context, pcm []byte, format Format) ([]byte, error) {
	if p == nil || p.encoder == nil {
		return nil, fmt.Errorf("audio pool: encoder unavailable")
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	done := make(chan encodeResult, 1)
	go func() {
		defer p.sem.Release(1)
		data, err := p.encoder.Encode(ctx, pcm, format)
		done <- encodeResult{data: data, err: err}
	}()
	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
