// package audio wraps external tooling for loudness normalization and the
// intro/outro analysis hook.
package audio

import "context"

// Analysis holds intro/outro trim offsets for a single audio file.
//
// Detected is false when no trim points were found; the offsets are only
// meaningful when it is true.
type Analysis struct {
	IntroSeconds float64
	OutroSeconds float64
	Detected     bool
}

// Processor transforms audio files on disk.
type Processor interface {
	// Normalize writes loudness-normalized copies of inputs into outputDir
	// and returns the output paths, one per input in the same order. In
	// batch mode a single gain is computed across the whole set so relative
	// levels between files are preserved.
	Normalize(ctx context.Context, inputs []string, outputDir string, targetLUFS float64, batch bool) ([]string, error)

	// Analyze inspects a file for repeated intro/outro segments.
	Analyze(ctx context.Context, path string, segmentSeconds, threshold float64) (*Analysis, error)
}
