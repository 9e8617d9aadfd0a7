package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// FrameSampler extracts still frames from a video for visual analysis.
type FrameSampler interface {
	Sample(ctx context.Context, videoPath string, maxFrames int) ([]string, error)
}

// FFmpegSampler shells out to ffprobe/ffmpeg. Extracted frames land in a
// per-video subdirectory of WorkDir as JPEGs.
type FFmpegSampler struct {
	WorkDir string
}

func NewFFmpegSampler(workDir string) *FFmpegSampler {
	return &FFmpegSampler{WorkDir: workDir}
}

// frameOffsets returns proportional sample positions within a duration:
// one frame at the midpoint, two at 25%/75%, three at 10%/50%/90%.
func frameOffsets(durationSec float64, n int) []float64 {
	var fracs []float64
	switch {
	case n <= 1:
		fracs = []float64{0.5}
	case n == 2:
		fracs = []float64{0.25, 0.75}
	default:
		fracs = []float64{0.10, 0.50, 0.90}
	}
	offsets := make([]float64, len(fracs))
	for i, f := range fracs {
		offsets[i] = durationSec * f
	}
	return offsets
}

// Sample extracts up to maxFrames stills at proportional offsets. If every
// offset fails it retries once with a single midpoint frame. Returns the
// paths of frames that were actually written.
func (s *FFmpegSampler) Sample(ctx context.Context, videoPath string, maxFrames int) ([]string, error) {
	dur, err := s.probeDuration(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}

	dir := filepath.Join(s.WorkDir, cleanName(filepath.Base(videoPath)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var frames []string
	for i, off := range frameOffsets(dur, maxFrames) {
		out := filepath.Join(dir, fmt.Sprintf("frame_%d.jpg", i))
		if err := s.extractFrame(ctx, videoPath, off, out); err != nil {
			log.Debug().Err(err).Str("video", videoPath).Float64("offset", off).Msg("frame extraction failed")
			continue
		}
		frames = append(frames, out)
	}

	if len(frames) == 0 {
		// Last resort: one midpoint frame.
		out := filepath.Join(dir, "frame_mid.jpg")
		if err := s.extractFrame(ctx, videoPath, dur/2, out); err != nil {
			return nil, fmt.Errorf("midpoint frame: %w", err)
		}
		frames = append(frames, out)
	}
	return frames, nil
}

func (s *FFmpegSampler) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}

func (s *FFmpegSampler) extractFrame(ctx context.Context, videoPath string, offsetSec float64, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-ss", fmt.Sprintf("%.2f", offsetSec),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg frame: %v; out=%s", err, string(out))
	}
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("ffmpeg wrote no frame at %.2fs", offsetSec)
	}
	return nil
}
