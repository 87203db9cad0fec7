package audio_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"episodegen/internal/audio"
	"episodegen/internal/services"
	"episodegen/internal/testsupport"
)

type fakeEncoder struct {
	output []byte
	calls  atomic.Int32
}

func (f *fakeEncoder) Encode(_ context.Context, _ []byte, _ audio.Format) ([]byte, error) {
	f.calls.Add(1)
	return f.output, nil
}

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakePutter) Put(_ context.Context, bucket, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = append([]byte(nil), body...)
	f.types[bucket+"/"+key] = contentType
	return nil
}

func TestFinalizeComputesFlooredDuration(t *testing.T) {
	enc := &fakeEncoder{output: []byte("mp3")}
	finalizer := audio.NewFinalizer(enc)

	tests := []struct {
		frames int
		want   int
	}{
		{frames: 1, want: 0},
		{frames: 23999, want: 0},
		{frames: 24000, want: 1},
		{frames: 24000*3 + 12000, want: 3},
	}
	for _, tc := range tests {
		got, err := finalizer.Finalize(context.Background(), testsupport.PCM(tc.frames), audio.DefaultFormat)
		if err != nil {
			t.Fatalf("Finalize(%d frames): %v", tc.frames, err)
		}
		if got.DurationSeconds != tc.want {
			t.Fatalf("Finalize(%d frames) duration = %d, want %d", tc.frames, got.DurationSeconds, tc.want)
		}
		if got.ContentType != audio.ContentType || string(got.Data) != "mp3" {
			t.Fatalf("unexpected encoded result: %+v", got)
		}
	}
}

func TestFinalizeEmptyPCMSkipsEncoder(t *testing.T) {
	enc := &fakeEncoder{output: []byte("mp3")}
	finalizer := audio.NewFinalizer(enc)

	_, err := finalizer.Finalize(context.Background(), nil, audio.DefaultFormat)
	if !errors.Is(err, services.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
	if enc.calls.Load() != 0 {
		t.Fatalf("encoder must not run for empty input, ran %d times", enc.calls.Load())
	}
}

func TestFinalizeEmptyEncodeFails(t *testing.T) {
	finalizer := audio.NewFinalizer(&fakeEncoder{})
	_, err := finalizer.Finalize(context.Background(), testsupport.PCM(100), audio.DefaultFormat)
	if !errors.Is(err, services.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestFinalizeRejectsPartialFrames(t *testing.T) {
	finalizer := audio.NewFinalizer(&fakeEncoder{output: []byte("mp3")})
	_, err := finalizer.Finalize(context.Background(), []byte{1, 2, 3}, audio.DefaultFormat)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	_, err = finalizer.Finalize(context.Background(), []byte{1, 2}, audio.Format{SampleWidth: 3, FrameRate: 24000, Channels: 1})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad width, got %v", err)
	}
}

func TestUploadOverwritesDeterministicKey(t *testing.T) {
	putter := newFakePutter()
	key := audio.ObjectKey(7, 42)
	if key != "7/42.mp3" {
		t.Fatalf("unexpected key %q", key)
	}

	ctx := context.Background()
	if err := audio.Upload(ctx, putter, "episodes", key, audio.Encoded{Data: []byte("first")}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := audio.Upload(ctx, putter, "episodes", key, audio.Encoded{Data: []byte("second"), ContentType: audio.ContentType}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(putter.objects) != 1 {
		t.Fatalf("expected one object, got %d", len(putter.objects))
	}
	if got := string(putter.objects["episodes/7/42.mp3"]); got != "second" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if putter.types["episodes/7/42.mp3"] != "audio/mpeg" {
		t.Fatalf("unexpected content type %q", putter.types["episodes/7/42.mp3"])
	}
}

func TestUploadRefusesEmptyBuffer(t *testing.T) {
	putter := newFakePutter()
	err := audio.Upload(context.Background(), putter, "episodes", "1/1.mp3", audio.Encoded{})
	if !errors.Is(err, services.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
	if len(putter.objects) != 0 {
		t.Fatal("expected no storage write")
	}
}

type blockingEncoder struct {
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (b *blockingEncoder) Encode(ctx context.Context, _ []byte, _ audio.Format) ([]byte, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte("mp3"), nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	enc := &blockingEncoder{release: make(chan struct{})}
	pool := audio.NewPool(enc, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Encode(context.Background(), testsupport.PCM(10), audio.DefaultFormat); err != nil {
				t.Errorf("Encode: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for enc.active.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(enc.release)
	wg.Wait()

	if peak := enc.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent encodes, saw %d", peak)
	}
}

func TestPoolHonorsContext(t *testing.T) {
	enc := &blockingEncoder{release: make(chan struct{})}
	defer close(enc.release)
	pool := audio.NewPool(enc, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pool.Encode(ctx, testsupport.PCM(10), audio.DefaultFormat)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFFmpegEncoderUsesSubprocessOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg("ID3-encoded"))
	enc := audio.NewFFmpegEncoder(cfg.Pipeline.FFmpegBinary, cfg.Pipeline.AudioBitrate)
	finalizer := audio.NewFinalizer(audio.NewPool(enc, 1))

	got, err := finalizer.Finalize(context.Background(), testsupport.PCM(48000), audio.DefaultFormat)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if string(got.Data) != "ID3-encoded" || got.DurationSeconds != 2 {
		t.Fatalf("unexpected result: %q %d", got.Data, got.DurationSeconds)
	}
}

func TestFFmpegEncoderEmptyOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedFFmpeg(""))
	finalizer := audio.NewFinalizer(audio.NewFFmpegEncoder(cfg.Pipeline.FFmpegBinary, ""))

	_, err := finalizer.Finalize(context.Background(), testsupport.PCM(48000), audio.DefaultFormat)
	if !errors.Is(err, services.ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestFFmpegEncoderMissingBinary(t *testing.T) {
	enc := audio.NewFFmpegEncoder("/nonexistent/ffmpeg", "")
	_, err := enc.Encode(context.Background(), testsupport.PCM(10), audio.DefaultFormat)
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
