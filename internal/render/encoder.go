package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Encoder turns a captured frame sequence into a video container and can pull
// single frames back out for thumbnails.
type Encoder interface {
	Encode(ctx context.Context, framesDir, outPath string, frameRate int) error
	ExtractFrame(ctx context.Context, videoPath string, frameIndex int, outPath string) error
}

// FFmpegEncoder shells out to ffmpeg. Output is H.264 in MP4 with the moov
// atom relocated to the front so browsers can start playback while streaming.
type FFmpegEncoder struct {
	ffmpegPath string
}

func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	return &FFmpegEncoder{ffmpegPath: ffmpegPath}
}

func (f *FFmpegEncoder) Encode(ctx context.Context, framesDir, outPath string, frameRate int) error {
	args := []string{
		"-y",
		"-framerate", strconv.Itoa(frameRate),
		"-i", filepath.Join(framesDir, "frame-%06d.png"),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
		outPath,
	}
	return f.run(ctx, args)
}

func (f *FFmpegEncoder) ExtractFrame(ctx context.Context, videoPath string, frameIndex int, outPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", frameIndex),
		"-frames:v", "1",
		outPath,
	}
	return f.run(ctx, args)
}

func (f *FFmpegEncoder) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.Bytes()))
	}
	return nil
}

func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(lines[len(lines)-1])
}
