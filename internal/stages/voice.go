package stages

import (
	"context"
	"errors"
	"log/slog"

	"episodegen/internal/audio"
	"episodegen/internal/deps"
	"episodegen/internal/logging"
	"episodegen/internal/ports"
	"episodegen/internal/services"
	"episodegen/internal/stage"
	"episodegen/internal/store"
)

// Speaker labels used in composed scripts.
const (
	Speaker1 = "Speaker 1"
	Speaker2 = "Speaker 2"
)

// VoiceConfig wires the voice stage's collaborators.
type VoiceConfig struct {
	TTS       ports.TTS
	Finalizer *audio.Finalizer
	Blob      audio.Putter
	Bucket    string
	// VoiceFor maps a persona to a provider voice name.
	VoiceFor func(persona string) string
	// FFmpegBinary is probed by HealthCheck.
	FFmpegBinary string
}

// Voice renders the script to audio and stores it.
type Voice struct {
	cfg    VoiceConfig
	logger *slog.Logger
}

// NewVoice constructs the voice stage.
func NewVoice(cfg VoiceConfig, logger *slog.Logger) *Voice {
	if cfg.VoiceFor == nil {
		cfg.VoiceFor = func(persona string) string { return persona }
	}
	v := &Voice{cfg: cfg}
	v.SetLogger(logger)
	return v
}

// SetLogger updates the stage's logging destination.
func (v *Voice) SetLogger(logger *slog.Logger) {
	v.logger = logging.NewComponentLogger(logger, "voice")
}

// Step identifies the stage.
func (v *Voice) Step() store.Step { return store.StepVoice }

// SpeakerVoices maps script speaker labels to provider voices. Single-speaker
// formats only get Speaker 1; a missing second persona reuses the first.
func SpeakerVoices(req store.Request, voiceFor func(string) string) map[string]string {
	voices := map[string]string{Speaker1: voiceFor(req.Voice1)}
	if req.Format.SpeakerCount() > 1 {
		second := req.Voice2
		if second == "" {
			second = req.Voice1
		}
		voices[Speaker2] = voiceFor(second)
	}
	return voices
}

// Execute synthesizes, encodes, and uploads the episode audio. Nothing is
// uploaded when synthesis or encoding yields no audio.
func (v *Voice) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	logger := logging.WithContext(ctx, v.logger)

	voices := SpeakerVoices(in.Request, v.cfg.VoiceFor)
	speech, err := v.cfg.TTS.Synthesize(ctx, in.Compose.Transcript, voices)
	if err != nil {
		return stage.Output{}, classifyExternal(err, "synthesize")
	}
	logger.Debug("speech synthesized",
		logging.Int("pcm_bytes", len(speech.PCM)),
		logging.Int("frame_rate", speech.Format.FrameRate),
	)

	encoded, err := v.cfg.Finalizer.Finalize(ctx, speech.PCM, speech.Format)
	if err != nil {
		return stage.Output{}, err
	}

	key := audio.ObjectKey(in.PodcastID(), in.EpisodeID)
	if err := audio.Upload(ctx, v.cfg.Blob, v.cfg.Bucket, key, encoded); err != nil {
		return stage.Output{}, err
	}
	logger.Info("episode audio stored",
		logging.String(logging.FieldEventType, "voice_completed"),
		logging.String("object_key", key),
		logging.Int("duration_seconds", encoded.DurationSeconds),
		logging.Int64("size_bytes", encoded.Size()),
	)
	return stage.Output{Voice: &stage.VoiceOutput{
		ObjectKey:       key,
		DurationSeconds: encoded.DurationSeconds,
		SizeBytes:       encoded.Size(),
	}}, nil
}

// HealthCheck verifies the encoder binary and collaborators.
func (v *Voice) HealthCheck(ctx context.Context) stage.Health {
	const name = "voice"
	switch {
	case v.cfg.TTS == nil:
		return stage.Unhealthy(name, "tts client unavailable")
	case v.cfg.Blob == nil:
		return stage.Unhealthy(name, "blob store unavailable")
	case v.cfg.Finalizer == nil:
		return stage.Unhealthy(name, "audio finalizer unavailable")
	}
	if status := deps.CheckFFmpeg(ctx, v.cfg.FFmpegBinary); !status.Available {
		return stage.Unhealthy(name, status.Detail)
	}
	return stage.Healthy(name)
}

// classifyExternal marks unclassified collaborator errors as external failures
// so they surface with a stable kind.
func classifyExternal(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if services.Kind(err) != "internal" {
		return err
	}
	return services.Wrap(services.ErrExternalService, string(store.StepVoice), op, "", err)
}
