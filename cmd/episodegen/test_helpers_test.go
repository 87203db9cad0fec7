package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"episodegen/internal/audio"
	"episodegen/internal/config"
	"episodegen/internal/daemon"
	"episodegen/internal/executor"
	"episodegen/internal/metrics"
	"episodegen/internal/pipeline"
	"episodegen/internal/ports"
	"episodegen/internal/services/blob"
	"episodegen/internal/stage"
	"episodegen/internal/store"
	"episodegen/internal/testsupport"
)

type scriptedStage struct {
	step store.Step
	fn   func(ctx context.Context, in stage.Input) (stage.Output, error)
}

func (s scriptedStage) Step() store.Step { return s.step }
func (s scriptedStage) Execute(ctx context.Context, in stage.Input) (stage.Output, error) {
	return s.fn(ctx, in)
}
func (s scriptedStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(string(s.step)) }

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	fs, err := blob.NewFS(cfg.Storage.Dir)
	if err != nil {
		t.Fatalf("blob.NewFS: %v", err)
	}
	exec := executor.New(2, nil)
	m := metrics.New()
	ctrl, err := pipeline.NewController(cfg, st, exec, fs, scriptedStages(cfg, fs), nil, pipeline.WithMetrics(m))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	d, err := daemon.New(cfg, st, ctrl, exec, m, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		configPath: configPath,
		apiAddr:    d.Address(),
	}
}

func scriptedStages(cfg *config.Config, b ports.BlobStore) []stage.Stage {
	return []stage.Stage{
		scriptedStage{step: store.StepResearch, fn: func(_ context.Context, in stage.Input) (stage.Output, error) {
			return stage.Output{Research: &stage.ResearchOutput{Text: "notes on " + in.Request.Topic}}, nil
		}},
		scriptedStage{step: store.StepCompose, fn: func(_ context.Context, in stage.Input) (stage.Output, error) {
			return stage.Output{Compose: &stage.ComposeOutput{
				Title:      "About " + in.Request.Topic,
				Summary:    "summary",
				Transcript: "Speaker 1: " + in.Research.Text,
			}}, nil
		}},
		scriptedStage{step: store.StepVoice, fn: func(ctx context.Context, in stage.Input) (stage.Output, error) {
			key := audio.ObjectKey(in.PodcastID(), in.EpisodeID)
			if err := b.Put(ctx, cfg.Storage.Bucket, key, []byte("mp3"), "audio/mpeg"); err != nil {
				return stage.Output{}, err
			}
			return stage.Output{Voice: &stage.VoiceOutput{ObjectKey: key, DurationSeconds: 1, SizeBytes: 3}}, nil
		}},
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, apiAddr, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if apiAddr != "" {
		flags = append(flags, "--api", apiAddr)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
