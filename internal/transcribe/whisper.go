package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/linguaclip/backend/config"
)

// commandRunner abstracts subprocess execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// WhisperBackend invokes a local whisper CLI as a subprocess. Media is
// resampled to mono 16kHz PCM via ffmpeg first when the container format
// needs it; both intermediate audio and the CLI's JSON output live in a
// per-call temp directory that is removed on every exit path.
type WhisperBackend struct {
	binPath    string
	ffmpegPath string
	model      string
	threads    int
	runner     commandRunner
	logger     *zap.Logger
}

// NewWhisperBackend creates the local CLI adapter. A missing whisper or
// ffmpeg executable is a fatal precondition and fails construction, before
// any media file is touched.
func NewWhisperBackend(cfg config.WhisperConfig, logger *zap.Logger) (*WhisperBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bin, err := exec.LookPath(cfg.BinPath)
	if err != nil {
		return nil, fmt.Errorf("whisper executable %q not found: %w", cfg.BinPath, err)
	}
	ffmpeg, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg executable %q not found: %w", cfg.FFmpegPath, err)
	}
	model := cfg.Model
	if model == "" {
		model = "base"
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = 4
	}
	return &WhisperBackend{
		binPath:    bin,
		ffmpegPath: ffmpeg,
		model:      model,
		threads:    threads,
		runner:     execRunner{},
		logger:     logger,
	}, nil
}

// newWhisperBackendForTests skips executable lookup and injects a runner.
func newWhisperBackendForTests(binPath, ffmpegPath, model string, threads int, runner commandRunner) *WhisperBackend {
	return &WhisperBackend{
		binPath:    binPath,
		ffmpegPath: ffmpegPath,
		model:      model,
		threads:    threads,
		runner:     runner,
		logger:     zap.NewNop(),
	}
}

// Name returns the backend identifier.
func (w *WhisperBackend) Name() string { return "whisper" }

// whisperOutput is the JSON result file the whisper CLI writes.
type whisperOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs ffmpeg preprocessing and the whisper CLI, then parses
// the emitted JSON result file.
func (w *WhisperBackend) Transcribe(ctx context.Context, mediaPath, language string) (*Transcript, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, fmt.Errorf("media file not accessible: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "linguaclip-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			w.logger.Warn("scratch dir cleanup failed", zap.String("dir", tmpDir), zap.Error(rmErr))
		}
	}()

	audioPath := mediaPath
	if needsConversion(mediaPath) {
		audioPath = filepath.Join(tmpDir, "audio-16k-mono.wav")
		args := []string{"-y", "-i", mediaPath, "-ac", "1", "-ar", "16000", "-f", "wav", audioPath}
		if _, stderr, err := w.runner.Run(ctx, w.ffmpegPath, args...); err != nil {
			return nil, fmt.Errorf("ffmpeg conversion failed: %w (%s)", err, firstLine(stderr))
		}
	}

	args := []string{
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", tmpDir,
		"--word_timestamps", "True",
		"--threads", strconv.Itoa(w.threads),
	}
	if language != "" && language != "auto" {
		args = append(args, "--language", language)
	}
	if _, stderr, err := w.runner.Run(ctx, w.binPath, args...); err != nil {
		return nil, fmt.Errorf("whisper failed: %w (%s)", err, firstLine(stderr))
	}

	resultPath := filepath.Join(tmpDir, resultFileName(audioPath))
	data, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("whisper completed but result file is missing: %w", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	raw := make([]RawSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		raw = append(raw, RawSegment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return &Transcript{Language: out.Language, Segments: NormalizeSeconds(raw)}, nil
}

// needsConversion reports whether the container format must be resampled
// before whisper can consume it.
func needsConversion(path string) bool {
	return !strings.EqualFold(filepath.Ext(path), ".wav")
}

// resultFileName returns the JSON file whisper writes for an input.
func resultFileName(audioPath string) string {
	base := filepath.Base(audioPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
