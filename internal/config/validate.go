package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultSampleConfigDisplayPath
		}
		return fmt.Errorf("llm.api_key is required. Set EPISODEGEN_LLM_API_KEY env var or edit %s (create with 'episodegen config init')", defaultPath)
	}
	if c.LLM.MaxToolRounds > 10 {
		return errors.New("llm.max_tool_rounds must be at most 10")
	}
	return nil
}

func (c *Config) validateSearch() error {
	if c.Search.Provider != "exa" {
		return fmt.Errorf("search.provider: unsupported value %q", c.Search.Provider)
	}
	if c.Search.APIKey == "" {
		return errors.New("search.api_key is required (or set EXA_API_KEY)")
	}
	if c.Search.DefaultResults > c.Search.MaxResults {
		return errors.New("search.default_results must not exceed search.max_results")
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Provider {
	case "gemini":
		if c.TTS.APIKey == "" {
			return errors.New("tts.api_key must be set when tts.provider is gemini (or set GEMINI_API_KEY)")
		}
	case "polly":
		if c.TTS.Region == "" {
			return errors.New("tts.region must be set when tts.provider is polly (or set AWS_REGION)")
		}
	default:
		return fmt.Errorf("tts.provider: unsupported value %q", c.TTS.Provider)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Provider {
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.provider is s3")
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return errors.New("storage.access_key_id and storage.secret_access_key must be set together")
		}
	case "fs":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return errors.New("storage.dir must be set when storage.provider is fs")
		}
	default:
		return fmt.Errorf("storage.provider: unsupported value %q", c.Storage.Provider)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.voice_timeout_seconds": c.Pipeline.VoiceTimeoutSeconds,
		"pipeline.max_concurrent_runs":   c.Pipeline.MaxConcurrentRuns,
		"pipeline.encode_workers":        c.Pipeline.EncodeWorkers,
		"pipeline.heartbeat_interval":    c.Pipeline.HeartbeatInterval,
		"pipeline.heartbeat_timeout":     c.Pipeline.HeartbeatTimeout,
	}); err != nil {
		return err
	}
	if c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	if !strings.HasSuffix(c.Pipeline.AudioBitrate, "k") {
		return fmt.Errorf("pipeline.audio_bitrate: expected kbps value like 128k, got %q", c.Pipeline.AudioBitrate)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
