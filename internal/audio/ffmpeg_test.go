package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yotoup/internal/shared"
)

// fakeRunner records ffmpeg invocations and fabricates outputs.
type fakeRunner struct {
	calls   [][]string
	measure map[string]string
	fail    bool
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.fail {
		return []byte("boom"), errors.New("exit status 1")
	}

	joined := strings.Join(args, " ")
	if strings.Contains(joined, "print_format=json") {
		input := argAfter(args, "-i")
		loudness, ok := f.measure[input]
		if !ok {
			loudness = "-23.0"
		}
		return []byte("[Parsed_loudnorm] summary\n{\n\t\"input_i\" : \"" + loudness + "\"\n}\n"), nil
	}

	// Encoding pass: last arg is the output path.
	output := args[len(args)-1]
	if err := os.WriteFile(output, []byte("normalized"), 0o644); err != nil {
		return nil, err
	}
	return nil, nil
}

func argAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newTestProcessor(runner *fakeRunner) *FFmpegProcessor {
	p := NewFFmpegProcessor(shared.ToolsConfig{FFmpegPath: "ffmpeg"}, shared.NewLogger(nil))
	p.run = runner.run
	return p
}

func writeInputs(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write input: %v", err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

func TestNormalize(t *testing.T) {
	t.Run("per-file mode normalizes each input", func(t *testing.T) {
		_, inputs := writeInputs(t, "a.mp3", "b.mp3")
		outputDir := t.TempDir()
		runner := &fakeRunner{}

		outputs, err := newTestProcessor(runner).Normalize(context.Background(), inputs, outputDir, -23.0, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(outputs) != 2 {
			t.Fatalf("expected 2 outputs, got %d", len(outputs))
		}
		for i, output := range outputs {
			if filepath.Base(output) != filepath.Base(inputs[i]) {
				t.Errorf("output %d should keep base name, got %s", i, output)
			}
			if _, err := os.Stat(output); err != nil {
				t.Errorf("output %d missing: %v", i, err)
			}
		}
		if len(runner.calls) != 2 {
			t.Errorf("expected 2 ffmpeg calls, got %d", len(runner.calls))
		}
		if !strings.Contains(strings.Join(runner.calls[0], " "), "loudnorm=I=-23") {
			t.Errorf("expected loudnorm filter, got %v", runner.calls[0])
		}
	})

	t.Run("batch mode applies one shared gain", func(t *testing.T) {
		_, inputs := writeInputs(t, "a.mp3", "b.mp3")
		outputDir := t.TempDir()
		runner := &fakeRunner{measure: map[string]string{
			inputs[0]: "-19.0",
			inputs[1]: "-21.0",
		}}

		outputs, err := newTestProcessor(runner).Normalize(context.Background(), inputs, outputDir, -23.0, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(outputs) != 2 {
			t.Fatalf("expected 2 outputs, got %d", len(outputs))
		}

		// Two measurement passes, then two encode passes with the same gain.
		if len(runner.calls) != 4 {
			t.Fatalf("expected 4 ffmpeg calls, got %d", len(runner.calls))
		}
		var gains []string
		for _, call := range runner.calls[2:] {
			filter := argAfter(call[1:], "-af")
			if !strings.HasPrefix(filter, "volume=") {
				t.Errorf("expected volume filter, got %s", filter)
			}
			gains = append(gains, filter)
		}
		if gains[0] != gains[1] {
			t.Errorf("batch gain must be shared, got %v", gains)
		}
		// Mean loudness is -20 LUFS, so the album gain is -3 dB.
		if gains[0] != "volume=-3dB" {
			t.Errorf("expected volume=-3dB, got %s", gains[0])
		}
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		runner := &fakeRunner{}
		outputs, err := newTestProcessor(runner).Normalize(context.Background(), nil, t.TempDir(), -23.0, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outputs != nil || len(runner.calls) != 0 {
			t.Errorf("expected no work, got outputs=%v calls=%d", outputs, len(runner.calls))
		}
	})

	t.Run("ffmpeg failure surfaces with output", func(t *testing.T) {
		_, inputs := writeInputs(t, "a.mp3")
		runner := &fakeRunner{fail: true}

		_, err := newTestProcessor(runner).Normalize(context.Background(), inputs, t.TempDir(), -23.0, false)
		if err == nil || !strings.Contains(err.Error(), "boom") {
			t.Errorf("expected ffmpeg output in error, got %v", err)
		}
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("reports nothing detected", func(t *testing.T) {
		_, inputs := writeInputs(t, "a.mp3")

		analysis, err := newTestProcessor(&fakeRunner{}).Analyze(context.Background(), inputs[0], 10.0, 0.75)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if analysis.Detected {
			t.Error("expected no detection")
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := newTestProcessor(&fakeRunner{}).Analyze(context.Background(), "/nonexistent.mp3", 10.0, 0.75)
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestParseInputLoudness(t *testing.T) {
	t.Run("extracts trailing JSON block", func(t *testing.T) {
		output := []byte("frame=1 {not json}\n[Parsed_loudnorm_0]\n{\n  \"input_i\" : \"-19.5\",\n  \"input_tp\" : \"-1.2\"\n}\n")
		loudness, err := parseInputLoudness(output)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loudness != -19.5 {
			t.Errorf("expected -19.5, got %v", loudness)
		}
	})

	t.Run("missing stats errors", func(t *testing.T) {
		if _, err := parseInputLoudness([]byte("no json here")); err == nil {
			t.Error("expected error")
		}
	})
}
