package config

const (
	defaultDataDir                 = "~/.local/share/episodegen"
	defaultLogDir                  = "~/.local/share/episodegen/logs"
	defaultAPIBind                 = "127.0.0.1:7490"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-2.5-flash"
	defaultLLMReferer              = "https://github.com/episodegen/episodegen"
	defaultLLMTitle                = "Episodegen"
	defaultLLMTimeoutSeconds       = 120
	defaultLLMMaxToolRounds        = 3
	defaultSearchProvider          = "exa"
	defaultSearchBaseURL           = "https://api.exa.ai"
	defaultSearchTimeoutSeconds    = 30
	defaultSearchResults           = 3
	defaultSearchMaxResults        = 10
	defaultSearchContentChars      = 500
	defaultTTSProvider             = "gemini"
	defaultTTSBaseURL              = "https://generativelanguage.googleapis.com/v1beta"
	defaultTTSModel                = "gemini-2.5-flash-preview-tts"
	defaultTTSTimeoutSeconds       = 240
	defaultStorageProvider         = "s3"
	defaultStorageRegion           = "us-east-1"
	defaultStorageDir              = "~/.local/share/episodegen/audio"
	defaultAudioURLHours           = 48
	defaultDownloadURLMinutes      = 15
	defaultVoiceTimeoutSeconds     = 300
	defaultMaxConcurrentRuns       = 4
	defaultEncodeWorkers           = 2
	defaultAudioBitrate            = "128k"
	defaultFFmpegBinary            = "ffmpeg"
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultNotifyRequestTimeout    = 10
	defaultSampleConfigDisplayPath = "~/.config/episodegen/config.toml"
)

// defaultVoices maps persona names to Gemini prebuilt voice names.
var defaultVoices = map[string]string{
	"maya":  "Zephyr",
	"jake":  "Puck",
	"sofia": "Kore",
	"alex":  "Charon",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	voices := make(map[string]string, len(defaultVoices))
	for persona, voice := range defaultVoices {
		voices[persona] = voice
	}
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			MaxToolRounds:  defaultLLMMaxToolRounds,
		},
		Search: Search{
			Provider:       defaultSearchProvider,
			BaseURL:        defaultSearchBaseURL,
			TimeoutSeconds: defaultSearchTimeoutSeconds,
			DefaultResults: defaultSearchResults,
			MaxResults:     defaultSearchMaxResults,
			ContentChars:   defaultSearchContentChars,
		},
		TTS: TTS{
			Provider:       defaultTTSProvider,
			BaseURL:        defaultTTSBaseURL,
			Model:          defaultTTSModel,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
			Voices:         voices,
		},
		Storage: Storage{
			Provider:           defaultStorageProvider,
			Region:             defaultStorageRegion,
			Dir:                defaultStorageDir,
			AudioURLHours:      defaultAudioURLHours,
			DownloadURLMinutes: defaultDownloadURLMinutes,
		},
		Pipeline: Pipeline{
			VoiceTimeoutSeconds: defaultVoiceTimeoutSeconds,
			MaxConcurrentRuns:   defaultMaxConcurrentRuns,
			EncodeWorkers:       defaultEncodeWorkers,
			AudioBitrate:        defaultAudioBitrate,
			FFmpegBinary:        defaultFFmpegBinary,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			ResumeOnStart:       true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
