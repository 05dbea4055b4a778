package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"yotoup/internal/shared"
)

// FFmpegProcessor implements [Processor] by shelling out to ffmpeg.
//
// Per-file normalization uses the loudnorm filter directly. Batch mode
// measures every file's integrated loudness first, then applies one shared
// gain so an album keeps its internal dynamics.
type FFmpegProcessor struct {
	binary string
	logger *log.Logger

	// run executes a command and returns its combined output. Swapped out
	// in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewFFmpegProcessor creates a processor using the configured ffmpeg binary.
func NewFFmpegProcessor(cfg shared.ToolsConfig, logger *log.Logger) *FFmpegProcessor {
	binary := cfg.FFmpegPath
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &FFmpegProcessor{
		binary: binary,
		logger: shared.WithLogger(logger, "component", "audio"),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Normalize implements [Processor].
func (p *FFmpegProcessor) Normalize(ctx context.Context, inputs []string, outputDir string, targetLUFS float64, batch bool) ([]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if batch {
		return p.normalizeBatch(ctx, inputs, outputDir, targetLUFS)
	}

	outputs := make([]string, 0, len(inputs))
	for _, input := range inputs {
		output := outputPath(outputDir, input)
		filter := fmt.Sprintf("loudnorm=I=%s:TP=-1.0:LRA=7", formatFloat(targetLUFS))
		if err := p.ffmpeg(ctx, "-i", input, "-af", filter, output); err != nil {
			return nil, fmt.Errorf("failed to normalize %s: %w", filepath.Base(input), err)
		}
		outputs = append(outputs, output)
	}
	return outputs, nil
}

// normalizeBatch measures each file's integrated loudness, averages them and
// applies the single resulting gain to every file.
func (p *FFmpegProcessor) normalizeBatch(ctx context.Context, inputs []string, outputDir string, targetLUFS float64) ([]string, error) {
	var sum float64
	for _, input := range inputs {
		loudness, err := p.measure(ctx, input, targetLUFS)
		if err != nil {
			return nil, fmt.Errorf("failed to measure %s: %w", filepath.Base(input), err)
		}
		sum += loudness
	}

	gain := targetLUFS - sum/float64(len(inputs))
	p.logger.Debug("applying album gain", "gain_db", gain, "files", len(inputs))

	outputs := make([]string, 0, len(inputs))
	filter := fmt.Sprintf("volume=%sdB", formatFloat(gain))
	for _, input := range inputs {
		output := outputPath(outputDir, input)
		if err := p.ffmpeg(ctx, "-i", input, "-af", filter, output); err != nil {
			return nil, fmt.Errorf("failed to apply gain to %s: %w", filepath.Base(input), err)
		}
		outputs = append(outputs, output)
	}
	return outputs, nil
}

// Analyze implements [Processor].
//
// Intro/outro detection is a hook point without an implementation yet; the
// result always reports nothing detected so callers trim nothing.
func (p *FFmpegProcessor) Analyze(ctx context.Context, path string, segmentSeconds, threshold float64) (*Analysis, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot analyze %s: %w", filepath.Base(path), err)
	}
	return &Analysis{}, nil
}

// measure runs a loudnorm measurement pass and returns the integrated
// loudness in LUFS.
func (p *FFmpegProcessor) measure(ctx context.Context, input string, targetLUFS float64) (float64, error) {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=-1.0:LRA=7:print_format=json", formatFloat(targetLUFS))
	output, err := p.run(ctx, p.binary,
		"-hide_banner", "-nostats",
		"-i", input,
		"-af", filter,
		"-f", "null", "-",
	)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg measurement: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return parseInputLoudness(output)
}

func (p *FFmpegProcessor) ffmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	if output, err := p.run(ctx, p.binary, full...); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// parseInputLoudness extracts input_i from the JSON block loudnorm prints at
// the end of its output.
func parseInputLoudness(output []byte) (float64, error) {
	text := string(output)
	start := strings.LastIndex(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return 0, fmt.Errorf("no loudnorm stats in ffmpeg output")
	}

	var stats struct {
		InputI string `json:"input_i"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &stats); err != nil {
		return 0, fmt.Errorf("failed to parse loudnorm stats: %w", err)
	}

	loudness, err := strconv.ParseFloat(stats.InputI, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid input_i %q: %w", stats.InputI, err)
	}
	return loudness, nil
}

// outputPath keeps the input's base name inside outputDir.
func outputPath(outputDir, input string) string {
	return filepath.Join(outputDir, filepath.Base(input))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
