package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"episodegen/internal/config"
)

// ConfigOption adjusts the config returned by NewConfig.
type ConfigOption func(*fixture)

type fixture struct {
	t   testing.TB
	dir string
	cfg *config.Config
}

func (f *fixture) path(elem ...string) string {
	return filepath.Join(append([]string{f.dir}, elem...)...)
}

// NewConfig returns a config rooted in a fresh temp directory. Provider keys
// hold placeholders and audio goes to the filesystem store, so nothing built
// from it reaches a real service.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	cfg := config.Default()
	f := &fixture{t: t, dir: t.TempDir(), cfg: &cfg}

	cfg.Paths.DataDir = f.path("data")
	cfg.Paths.LogDir = f.path("logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Storage.Provider = "fs"
	cfg.Storage.Bucket = "episodes"
	cfg.Storage.Dir = f.path("audio")
	cfg.Notifications.NtfyTopic = ""
	for _, key := range []*string{&cfg.LLM.APIKey, &cfg.Search.APIKey, &cfg.TTS.APIKey} {
		*key = "test"
	}

	for _, opt := range opts {
		opt(f)
	}
	return f.cfg
}

func WithAPIToken(token string) ConfigOption {
	return func(f *fixture) { f.cfg.Paths.APIToken = token }
}

// WithVoiceTimeout sets the voice step budget in seconds.
func WithVoiceTimeout(seconds int) ConfigOption {
	return func(f *fixture) { f.cfg.Pipeline.VoiceTimeoutSeconds = seconds }
}

// WithStubbedFFmpeg installs a shell script standing in for ffmpeg. It
// swallows stdin and prints output; an empty output simulates an encoder
// that produced nothing.
func WithStubbedFFmpeg(output string) ConfigOption {
	return func(f *fixture) {
		target := f.path("bin", "ffmpeg")
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			f.t.Fatalf("create stub dir: %v", err)
		}
		script := "#!/bin/sh\ncat >/dev/null\nprintf '%s' '" + output + "'\n"
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			f.t.Fatalf("write stub ffmpeg: %v", err)
		}
		f.cfg.Pipeline.FFmpegBinary = target
	}
}

// BaseDir returns the temp directory a NewConfig result lives under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
