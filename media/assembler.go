// Package media assembles ordered still images into one video file with
// the local ffmpeg tool.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/models"
)

const (
	fallbackWidth  = 1280
	fallbackHeight = 720
)

// Assembler turns stills into a slideshow video.
// It is safe for concurrent use; every call works in its own temp dir.
type Assembler struct {
	cfg     config.MediaConfig
	enc     Encoder
	fetcher Fetcher
	now     func() time.Time
}

// NewAssembler creates an Assembler. A nil enc runs cfg.FFmpegBin; a nil
// fetcher disables http(s) image references.
func NewAssembler(cfg config.MediaConfig, enc Encoder, fetcher Fetcher) *Assembler {
	if enc == nil {
		enc = FFmpeg{Bin: cfg.FFmpegBin}
	}
	return &Assembler{cfg: cfg, enc: enc, fetcher: fetcher, now: time.Now}
}

// Assemble writes a video showing each image for Duration/len(images)
// seconds and returns its path. Undecodable references are skipped; if none
// remain the call fails with NO_VALID_IMAGES and writes nothing.
func (a *Assembler) Assemble(ctx context.Context, req models.AssembleRequest) (string, error) {
	req.Defaults()
	if req.Duration <= 0 {
		return "", models.NewError(models.ErrCodeInvalidInput, "duration must be positive", nil)
	}

	tmp, err := os.MkdirTemp(a.cfg.TempDir, fmt.Sprintf("df_video_%d_", a.now().UnixMilli()))
	if err != nil {
		return "", models.NewError(models.ErrCodeInternal, "failed to create temp dir", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			slog.Warn("failed to remove temp dir", "dir", tmp, "error", err)
		}
	}()

	var images []*Image
	var paths []string
	for i, ref := range req.Images {
		img, err := LoadImage(ctx, ref, a.fetcher)
		if err != nil {
			slog.Warn("skipping image", "index", i, "error", err)
			continue
		}
		p := filepath.Join(tmp, fmt.Sprintf("img_%03d%s", len(images), img.Ext))
		if err := os.WriteFile(p, img.Data, 0o600); err != nil {
			return "", models.NewError(models.ErrCodeInternal, "failed to stage image", err)
		}
		images = append(images, img)
		paths = append(paths, p)
	}
	if len(images) == 0 {
		return "", models.NewError(models.ErrCodeNoValidImages, "No valid images provided", nil)
	}

	per := req.Duration / float64(len(images))
	frames := make([]frame, len(paths))
	for i, p := range paths {
		frames[i] = frame{path: p, seconds: per}
	}
	w, h := outputSize(images[0])

	staged := filepath.Join(tmp, "out.mp4")
	encCtx := ctx
	if a.cfg.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		encCtx, cancel = context.WithTimeout(ctx, a.cfg.EncodeTimeout)
		defer cancel()
	}
	slog.Info("encoding video", "images", len(images), "seconds", req.Duration, "size", fmt.Sprintf("%dx%d", w, h))
	if err := a.enc.Encode(encCtx, buildArgs(frames, w, h, req.FPS, staged)); err != nil {
		if me := models.AsError(err); me.Code == models.ErrCodeEncode {
			return "", me
		}
		return "", models.NewError(models.ErrCodeEncode, "encoder failed", err)
	}

	out := req.OutputPath
	if out == "" {
		out = filepath.Join(a.cfg.OutputDir, fmt.Sprintf("DataFlow_Video_%d.mp4", a.now().UnixMilli()))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", models.NewError(models.ErrCodeInternal, "failed to create output dir", err)
	}
	if err := moveFile(staged, out); err != nil {
		return "", models.NewError(models.ErrCodeEncode, "failed to write output video", err)
	}
	slog.Info("video assembled", "path", out)
	return out, nil
}

// outputSize derives even dimensions from the first still, as libx264 with
// yuv420p rejects odd sizes.
func outputSize(first *Image) (int, int) {
	w, h := first.Width, first.Height
	if w <= 0 || h <= 0 {
		return fallbackWidth, fallbackHeight
	}
	w, h = w&^1, h&^1
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	return w, h
}

// moveFile renames src to dst, copying across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	outFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		os.Remove(dst)
		return err
	}
	return outFile.Close()
}
