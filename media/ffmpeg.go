package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/use-agent/dataflow/models"
)

// Encoder runs the video encoder with args.
type Encoder interface {
	Encode(ctx context.Context, args []string) error
}

// FFmpeg runs the local ffmpeg binary.
type FFmpeg struct {
	Bin string
}

// Encode runs ffmpeg and wraps its stderr into ENCODE_FAILED on failure.
func (f FFmpeg) Encode(ctx context.Context, args []string) error {
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return models.NewError(models.ErrCodeEncode,
			fmt.Sprintf("ffmpeg failed: %s", tail(stderr.String(), 2000)), err)
	}
	return nil
}

// frame is one input of the slideshow.
type frame struct {
	path    string
	seconds float64
}

// buildArgs renders the ffmpeg command line: every still looped for its
// share of the duration, scaled and padded to w x h, then concatenated.
func buildArgs(frames []frame, w, h, fps int, out string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, fr := range frames {
		args = append(args,
			"-loop", "1",
			"-t", strconv.FormatFloat(fr.seconds, 'f', 3, 64),
			"-i", fr.path,
		)
	}

	var fc strings.Builder
	for i := range frames {
		fmt.Fprintf(&fc,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, w, h, w, h, fps, i)
	}
	for i := range frames {
		fmt.Fprintf(&fc, "[v%d]", i)
	}
	fmt.Fprintf(&fc, "concat=n=%d:v=1:a=0,format=yuv420p[out]", len(frames))

	args = append(args,
		"-filter_complex", fc.String(),
		"-map", "[out]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-movflags", "+faststart",
		out,
	)
	return args
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
