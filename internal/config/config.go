package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// LLM contains chat-completion connection settings shared by the research and
// compose stages.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxToolRounds  int    `toml:"max_tool_rounds"`
}

// Search contains web search provider settings used by the research stage.
type Search struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	DefaultResults int    `toml:"default_results"`
	MaxResults     int    `toml:"max_results"`
	ContentChars   int    `toml:"content_chars"`
}

// TTS contains speech synthesis settings used by the voice stage.
type TTS struct {
	Provider       string            `toml:"provider"`
	APIKey         string            `toml:"api_key"`
	BaseURL        string            `toml:"base_url"`
	Model          string            `toml:"model"`
	Region         string            `toml:"region"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	Voices         map[string]string `toml:"voices"`
}

// Storage contains object storage settings for finished audio.
type Storage struct {
	Provider           string `toml:"provider"`
	Bucket             string `toml:"bucket"`
	Region             string `toml:"region"`
	Endpoint           string `toml:"endpoint"`
	AccessKeyID        string `toml:"access_key_id"`
	SecretAccessKey    string `toml:"secret_access_key"`
	UsePathStyle       bool   `toml:"use_path_style"`
	Dir                string `toml:"dir"`
	AudioURLHours      int    `toml:"audio_url_hours"`
	DownloadURLMinutes int    `toml:"download_url_minutes"`
}

// Pipeline contains run execution limits and timing.
type Pipeline struct {
	VoiceTimeoutSeconds int    `toml:"voice_timeout_seconds"`
	MaxConcurrentRuns   int    `toml:"max_concurrent_runs"`
	EncodeWorkers       int    `toml:"encode_workers"`
	AudioBitrate        string `toml:"audio_bitrate"`
	FFmpegBinary        string `toml:"ffmpeg_binary"`
	HeartbeatInterval   int    `toml:"heartbeat_interval"`
	HeartbeatTimeout    int    `toml:"heartbeat_timeout"`
	ResumeOnStart       bool   `toml:"resume_on_start"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for episodegen.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and the API bind address
//   - LLM: chat completion provider for research and compose
//   - Search: web search provider backing the research tool
//   - TTS: speech synthesis provider and persona voices
//   - Storage: object storage for finished audio
//   - Pipeline: concurrency, timeouts, and heartbeat timing
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	LLM           LLM           `toml:"llm"`
	Search        Search        `toml:"search"`
	TTS           TTS           `toml:"tts"`
	Storage       Storage       `toml:"storage"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// ConfigEnv names the environment variable that overrides the config file
// location when no explicit path is given.
const ConfigEnv = "EPISODEGEN_CONFIG"

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultSampleConfigDisplayPath)
}

// Load finds the config file, decodes it over the defaults, then normalizes
// and validates the result. It returns the resolved path and whether a file
// was actually read; a missing file yields the defaults. Unknown keys are an
// error so typos do not silently fall back to defaults.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locateConfig(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := toml.NewDecoder(file)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config %s: %s", path, strict.String())
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// locateConfig picks the first candidate that exists: the explicit path, then
// $EPISODEGEN_CONFIG, then the per-user default, then ./episodegen.toml. An
// explicit or env path is returned even when missing.
// Locate reports which config file Load would read and whether it exists.
func Locate(explicit string) (string, bool, error) {
	return locateConfig(explicit)
}

func locateConfig(explicit string) (string, bool, error) {
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(ConfigEnv))
	}
	if explicit != "" {
		path, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		exists, err := isFile(path)
		return path, exists, err
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	local, err := filepath.Abs("episodegen.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, local} {
		if ok, _ := isFile(candidate); ok {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("config path %s is a directory", path)
	}
	return true, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Provider == "fs" {
		dirs = append(dirs, c.Storage.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "episodegen.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "episodegen.lock")
}

// VoiceTimeout returns the wall-clock budget for the voice stage.
func (c *Config) VoiceTimeout() time.Duration {
	return time.Duration(c.Pipeline.VoiceTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns how often in-flight runs refresh their heartbeat.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns the age after which an active run is considered stale.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Pipeline.HeartbeatTimeout) * time.Second
}

// AudioURLTTL returns the lifetime of presigned playback URLs.
func (c *Config) AudioURLTTL() time.Duration {
	return time.Duration(c.Storage.AudioURLHours) * time.Hour
}

// DownloadURLTTL returns the lifetime of presigned download redirects.
func (c *Config) DownloadURLTTL() time.Duration {
	return time.Duration(c.Storage.DownloadURLMinutes) * time.Minute
}

// VoiceFor resolves a persona to its configured TTS voice. Unknown personas
// are returned unchanged so providers can accept raw voice names.
func (c *Config) VoiceFor(persona string) string {
	key := strings.ToLower(strings.TrimSpace(persona))
	if voice, ok := c.TTS.Voices[key]; ok && voice != "" {
		return voice
	}
	return persona
}

// Redacted returns a copy with credentials masked for display.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(value string) string {
		if strings.TrimSpace(value) == "" {
			return ""
		}
		return "********"
	}
	out.Paths.APIToken = mask(c.Paths.APIToken)
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Search.APIKey = mask(c.Search.APIKey)
	out.TTS.APIKey = mask(c.TTS.APIKey)
	out.Storage.AccessKeyID = mask(c.Storage.AccessKeyID)
	out.Storage.SecretAccessKey = mask(c.Storage.SecretAccessKey)
	return out
}

// ExpandPath resolves a leading ~ to the home directory and returns an
// absolute, cleaned path. Empty input stays empty.
func ExpandPath(value string) (string, error) {
	return expandPath(value)
}

func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. The file may end up
// holding API keys, so it is created owner-readable only.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
