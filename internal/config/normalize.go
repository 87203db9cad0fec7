package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeSearch()
	c.normalizeTTS()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = lookupEnv("EPISODEGEN_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxToolRounds <= 0 {
		c.LLM.MaxToolRounds = defaultLLMMaxToolRounds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupEnv("EPISODEGEN_LLM_API_KEY", "OPENROUTER_API_KEY")
	}
}

func (c *Config) normalizeSearch() {
	c.Search.Provider = strings.ToLower(strings.TrimSpace(c.Search.Provider))
	if c.Search.Provider == "" {
		c.Search.Provider = defaultSearchProvider
	}
	c.Search.BaseURL = strings.TrimRight(strings.TrimSpace(c.Search.BaseURL), "/")
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = defaultSearchBaseURL
	}
	if c.Search.TimeoutSeconds <= 0 {
		c.Search.TimeoutSeconds = defaultSearchTimeoutSeconds
	}
	if c.Search.DefaultResults <= 0 {
		c.Search.DefaultResults = defaultSearchResults
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = defaultSearchMaxResults
	}
	if c.Search.ContentChars <= 0 {
		c.Search.ContentChars = defaultSearchContentChars
	}
	c.Search.APIKey = strings.TrimSpace(c.Search.APIKey)
	if c.Search.APIKey == "" {
		c.Search.APIKey = lookupEnv("EXA_API_KEY")
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	if c.TTS.Provider == "" {
		c.TTS.Provider = defaultTTSProvider
	}
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	c.TTS.Model = strings.TrimSpace(c.TTS.Model)
	if c.TTS.Model == "" {
		c.TTS.Model = defaultTTSModel
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	c.TTS.Region = strings.TrimSpace(c.TTS.Region)
	if c.TTS.Region == "" {
		c.TTS.Region = lookupEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if c.TTS.APIKey == "" && c.TTS.Provider == "gemini" {
		c.TTS.APIKey = lookupEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	normalized := make(map[string]string, len(c.TTS.Voices))
	for persona, voice := range c.TTS.Voices {
		key := strings.ToLower(strings.TrimSpace(persona))
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(voice)
	}
	for persona, voice := range defaultVoices {
		if _, ok := normalized[persona]; !ok {
			normalized[persona] = voice
		}
	}
	c.TTS.Voices = normalized
}

func (c *Config) normalizeStorage() error {
	c.Storage.Provider = strings.ToLower(strings.TrimSpace(c.Storage.Provider))
	if c.Storage.Provider == "" {
		c.Storage.Provider = defaultStorageProvider
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = lookupEnv("EPISODEGEN_BUCKET")
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	if strings.TrimSpace(c.Storage.Dir) == "" {
		c.Storage.Dir = defaultStorageDir
	}
	var err error
	if c.Storage.Dir, err = expandPath(c.Storage.Dir); err != nil {
		return fmt.Errorf("storage.dir: %w", err)
	}
	if c.Storage.AudioURLHours <= 0 {
		c.Storage.AudioURLHours = defaultAudioURLHours
	}
	if c.Storage.DownloadURLMinutes <= 0 {
		c.Storage.DownloadURLMinutes = defaultDownloadURLMinutes
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.AudioBitrate = strings.ToLower(strings.TrimSpace(c.Pipeline.AudioBitrate))
	if c.Pipeline.AudioBitrate == "" {
		c.Pipeline.AudioBitrate = defaultAudioBitrate
	}
	c.Pipeline.FFmpegBinary = strings.TrimSpace(c.Pipeline.FFmpegBinary)
	if c.Pipeline.FFmpegBinary == "" {
		c.Pipeline.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
