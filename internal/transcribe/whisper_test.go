package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/linguaclip/backend/config"
)

// fakeRunner simulates subprocess execution.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (string, string, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	if f.run == nil {
		return "", "", nil
	}
	return f.run(ctx, name, args...)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// TestNewWhisperBackendMissingExecutable checks that a missing
// executable fails adapter construction, before any media is touched.
func TestNewWhisperBackendMissingExecutable(t *testing.T) {
	_, err := NewWhisperBackend(config.WhisperConfig{
		BinPath:    "definitely-not-a-real-whisper-binary",
		FFmpegPath: "definitely-not-a-real-ffmpeg-binary",
	}, zap.NewNop())
	if err == nil {
		t.Fatal("NewWhisperBackend() with missing executable: want error, got nil")
	}
}

// TestWhisperTranscribeHappyPath checks conversion + CLI invocation and
// JSON result parsing end to end with fake subprocesses.
func TestWhisperTranscribeHappyPath(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.mp4")
	mustWriteFile(t, mediaPath, "media")

	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (string, string, error) {
			call++
			switch call {
			case 1:
				if name != "ffmpeg-test" {
					t.Fatalf("command 1 name = %q, want ffmpeg-test", name)
				}
				// mono 16kHz resample flags must be present
				if argValue(args, "-ac") != "1" || argValue(args, "-ar") != "16000" {
					t.Fatalf("ffmpeg args missing resample flags: %v", args)
				}
				return "", "", nil
			case 2:
				if name != "whisper-test" {
					t.Fatalf("command 2 name = %q, want whisper-test", name)
				}
				if argValue(args, "--model") != "base" {
					t.Fatalf("whisper model = %q, want base", argValue(args, "--model"))
				}
				if argValue(args, "--language") != "en" {
					t.Fatalf("whisper language = %q, want en", argValue(args, "--language"))
				}
				outDir := argValue(args, "--output_dir")
				result := `{"language":"en","segments":[{"start":0.0,"end":2.5,"text":" hello world"}]}`
				mustWriteFile(t, filepath.Join(outDir, resultFileName(args[0])), result)
				return "", "", nil
			default:
				t.Fatalf("unexpected command call %d", call)
				return "", "", nil
			}
		},
	}

	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 4, runner)
	got, err := b.Transcribe(context.Background(), mediaPath, "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if call != 2 {
		t.Fatalf("command calls = %d, want 2", call)
	}
	if got.Language != "en" {
		t.Fatalf("language = %q, want en", got.Language)
	}
	if len(got.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(got.Segments))
	}
	seg := got.Segments[0]
	if seg.Start != 0.0 || seg.End != 2.5 || seg.Text != "hello world" || seg.TimeStr != "00:00:00" {
		t.Fatalf("segment = %+v", seg)
	}
}

// TestWhisperTranscribeWavSkipsConversion checks .wav input goes
// straight to the CLI.
func TestWhisperTranscribeWavSkipsConversion(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.wav")
	mustWriteFile(t, mediaPath, "wav")

	call := 0
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (string, string, error) {
			call++
			if name != "whisper-test" {
				t.Fatalf("command name = %q, want whisper-test", name)
			}
			if args[0] != mediaPath {
				t.Fatalf("whisper input = %q, want %q", args[0], mediaPath)
			}
			outDir := argValue(args, "--output_dir")
			mustWriteFile(t, filepath.Join(outDir, resultFileName(args[0])), `{"language":"en","segments":[]}`)
			return "", "", nil
		},
	}

	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 2, runner)
	got, err := b.Transcribe(context.Background(), mediaPath, "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if call != 1 {
		t.Fatalf("command calls = %d, want 1 (no ffmpeg for wav)", call)
	}
	if len(got.Segments) != 0 {
		t.Fatalf("segments = %d, want 0", len(got.Segments))
	}
}

// TestWhisperTranscribeCLIFailure checks a non-zero whisper exit
// surfaces as an error.
func TestWhisperTranscribeCLIFailure(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.wav")
	mustWriteFile(t, mediaPath, "wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (string, string, error) {
			return "", "model load failed", errors.New("exit status 1")
		},
	}
	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 2, runner)
	if _, err := b.Transcribe(context.Background(), mediaPath, ""); err == nil {
		t.Fatal("Transcribe() with failing CLI: want error, got nil")
	}
}

// TestWhisperTranscribeMalformedOutput checks that unparseable JSON
// output surfaces as an error.
func TestWhisperTranscribeMalformedOutput(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.wav")
	mustWriteFile(t, mediaPath, "wav")

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (string, string, error) {
			outDir := argValue(args, "--output_dir")
			mustWriteFile(t, filepath.Join(outDir, resultFileName(args[0])), "{not json")
			return "", "", nil
		},
	}
	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 2, runner)
	if _, err := b.Transcribe(context.Background(), mediaPath, ""); err == nil {
		t.Fatal("Transcribe() with malformed output: want error, got nil")
	}
}

// TestWhisperTranscribeMissingResultFile checks a successful exit with
// no result file still fails.
func TestWhisperTranscribeMissingResultFile(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "clip.wav")
	mustWriteFile(t, mediaPath, "wav")

	runner := &fakeRunner{}
	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 2, runner)
	if _, err := b.Transcribe(context.Background(), mediaPath, ""); err == nil {
		t.Fatal("Transcribe() with missing result file: want error, got nil")
	}
}

// TestWhisperTranscribeMissingMedia checks a nonexistent input path
// fails before any subprocess runs.
func TestWhisperTranscribeMissingMedia(t *testing.T) {
	called := false
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (string, string, error) {
			called = true
			return "", "", nil
		},
	}
	b := newWhisperBackendForTests("whisper-test", "ffmpeg-test", "base", 2, runner)
	if _, err := b.Transcribe(context.Background(), "/nonexistent/clip.mp4", ""); err == nil {
		t.Fatal("Transcribe() with missing media: want error, got nil")
	}
	if called {
		t.Fatal("subprocess ran despite missing media file")
	}
}
