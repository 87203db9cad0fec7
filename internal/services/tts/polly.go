package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"episodegen/internal/audio"
	"episodegen/internal/ports"
	"episodegen/internal/services"
)

const pollySampleRate = 16000

// pollyMaxChars stays under Polly's per-request text limit.
const pollyMaxChars = 2900

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig holds Amazon Polly settings.
type PollyConfig struct {
	Region string
	Engine string
}

// Polly synthesizes each speaker turn separately and joins the PCM.
type Polly struct {
	mu     sync.Mutex
	client synthClient
	cfg    PollyConfig
}

// NewPolly constructs a Polly speech client. A nil client is resolved from
// the default AWS credential chain on first use.
func NewPolly(cfg PollyConfig, client synthClient) *Polly {
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if strings.TrimSpace(cfg.Engine) == "" {
		cfg.Engine = "neural"
	}
	return &Polly{client: client, cfg: cfg}
}

// Synthesize renders each turn with the voice mapped to its speaker.
func (p *Polly) Synthesize(ctx context.Context, transcript string, voices map[string]string) (ports.SpeechAudio, error) {
	var empty ports.SpeechAudio
	turns := ParseTurns(transcript)
	if len(turns) == 0 {
		return empty, services.Wrap(services.ErrValidation, "tts", "polly", "transcript is empty", nil)
	}
	if len(voices) == 0 {
		return empty, services.Wrap(services.ErrValidation, "tts", "polly", "at least one voice required", nil)
	}
	client, err := p.resolveClient(ctx)
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, "tts", "polly", "load aws config", err)
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	fallback := voices[speakers(voices)[0]]

	var pcm []byte
	for _, turn := range turns {
		voice, ok := voices[turn.Speaker]
		if !ok {
			voice = fallback
		}
		for _, chunk := range splitText(turn.Text, pollyMaxChars) {
			output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
				Engine:       engine,
				OutputFormat: pollytypes.OutputFormatPcm,
				SampleRate:   aws.String(fmt.Sprintf("%d", pollySampleRate)),
				Text:         aws.String(chunk),
				TextType:     pollytypes.TextTypeText,
				VoiceId:      pollytypes.VoiceId(voice),
			})
			if err != nil {
				return empty, normalizePollyError(err)
			}
			if output == nil || output.AudioStream == nil {
				return empty, services.Wrap(services.ErrEmptyAudio, "tts", "polly", "no audio stream", nil)
			}
			data, err := io.ReadAll(output.AudioStream)
			output.AudioStream.Close()
			if err != nil {
				return empty, services.Wrap(services.ErrExternalService, "tts", "polly read", "", err)
			}
			pcm = append(pcm, data...)
		}
	}
	return ports.SpeechAudio{
		PCM:    pcm,
		Format: audio.Format{SampleWidth: 2, FrameRate: pollySampleRate, Channels: 1},
	}, nil
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ServiceFailureException":
			return services.Wrap(services.ErrTransient, "tts", "polly", apiErr.ErrorCode(), err)
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException", "InvalidSampleRateException":
			return services.Wrap(services.ErrValidation, "tts", "polly", apiErr.ErrorCode(), err)
		default:
			return services.Wrap(services.ErrExternalService, "tts", "polly", apiErr.ErrorCode(), err)
		}
	}
	return services.Wrap(services.ErrExternalService, "tts", "polly", "transport error", err)
}

// splitText breaks text at sentence or word boundaries into chunks of at most
// limit bytes.
func splitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexAny(text[:limit], ".!?")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], " ")
		}
		if cut <= 0 {
			cut = limit - 1
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut+1]))
		text = strings.TrimSpace(text[cut+1:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
