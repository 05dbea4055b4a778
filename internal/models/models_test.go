package models

import "testing"

func TestSessionConfig(t *testing.T) {
	t.Run("ApplyDefaults fills unset options", func(t *testing.T) {
		cfg := SessionConfig{}
		cfg.ApplyDefaults()

		if cfg.Mode != ModeChapters {
			t.Errorf("expected default mode chapters, got %s", cfg.Mode)
		}
		if cfg.TargetLUFS != DefaultTargetLUFS {
			t.Errorf("expected target LUFS %f, got %f", DefaultTargetLUFS, cfg.TargetLUFS)
		}
		if cfg.SegmentSeconds != DefaultSegmentSeconds {
			t.Errorf("expected segment seconds %f, got %f", DefaultSegmentSeconds, cfg.SegmentSeconds)
		}
		if cfg.SimilarityThreshold != DefaultSimilarityThreshold {
			t.Errorf("expected threshold %f, got %f", DefaultSimilarityThreshold, cfg.SimilarityThreshold)
		}
	})

	t.Run("ApplyDefaults keeps explicit options", func(t *testing.T) {
		cfg := SessionConfig{Mode: ModeTracks, TargetLUFS: -16.0}
		cfg.ApplyDefaults()

		if cfg.Mode != ModeTracks {
			t.Errorf("expected mode tracks, got %s", cfg.Mode)
		}
		if cfg.TargetLUFS != -16.0 {
			t.Errorf("expected target LUFS -16.0, got %f", cfg.TargetLUFS)
		}
	})
}

func TestOverallStatus(t *testing.T) {
	file := func(state FileState) *UploadFileStatus {
		return &UploadFileStatus{State: state}
	}

	tc := []struct {
		name      string
		files     []*UploadFileStatus
		finalized bool
		want      SessionState
	}{
		{name: "no files", want: SessionPending},
		{name: "all pending", files: []*UploadFileStatus{file(FilePending)}, want: SessionPending},
		{name: "active file", files: []*UploadFileStatus{file(FileNormalizing)}, want: SessionProcessing},
		{
			name:      "all done before finalize",
			files:     []*UploadFileStatus{file(FileDone)},
			finalized: false,
			want:      SessionPending,
		},
		{
			name:      "all done finalized",
			files:     []*UploadFileStatus{file(FileDone), file(FileDone)},
			finalized: true,
			want:      SessionSuccess,
		},
		{
			name:      "mixed finalized",
			files:     []*UploadFileStatus{file(FileDone), file(FileError)},
			finalized: true,
			want:      SessionPartialSuccess,
		},
		{
			name:      "all error finalized",
			files:     []*UploadFileStatus{file(FileError), file(FileError)},
			finalized: true,
			want:      SessionAllError,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			s := &UploadSession{Files: tt.files, Finalized: tt.finalized}
			if got := s.OverallStatus(); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCard(t *testing.T) {
	t.Run("EnsureContent", func(t *testing.T) {
		card := &Card{}
		card.EnsureContent()
		if card.Content == nil || card.Content.Chapters == nil {
			t.Fatal("expected content and chapters to be initialized")
		}
	})

	t.Run("NextChapterKey skips used keys", func(t *testing.T) {
		card := &Card{Content: &CardContent{Chapters: []Chapter{
			{Key: "0"}, {Key: "1"}, {Key: "3"},
		}}}
		if got := card.NextChapterKey(); got != "2" {
			t.Errorf("expected key 2, got %s", got)
		}
	})

	t.Run("NextChapterKey on empty card", func(t *testing.T) {
		card := &Card{}
		if got := card.NextChapterKey(); got != "0" {
			t.Errorf("expected key 0, got %s", got)
		}
	})
}
