package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/tubepilot/backend/internal/logging"
)

// ErrThumbnail wraps every failure to produce or publish a thumbnail.
var ErrThumbnail = errors.New("thumbnail generation failed")

// CommandRunner executes external commands and returns their combined output.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Publisher persists a thumbnail somewhere publicly reachable.
type Publisher interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Ref locates a thumbnail both in the run's scratch space and publicly.
type Ref struct {
	Path string
	URL  string
}

// Generator extracts a still frame with ffmpeg and publishes it.
type Generator struct {
	Binary    string
	Offset    string
	Width     int
	Height    int
	Timeout   time.Duration
	Run       CommandRunner
	Publisher Publisher
}

// NewGenerator constructs a Generator with defaults for any zero values.
func NewGenerator(binary, offset string, width, height int, timeout time.Duration, publisher Publisher) *Generator {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if offset == "" {
		offset = "00:00:01"
	}
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Generator{
		Binary:    binary,
		Offset:    offset,
		Width:     width,
		Height:    height,
		Timeout:   timeout,
		Run:       defaultCommandRunner,
		Publisher: publisher,
	}
}

// Generate captures the frame at the configured offset of videoPath into the same
// scratch directory and publishes it.
func (g *Generator) Generate(ctx context.Context, videoPath string) (Ref, error) {
	if g.Run == nil {
		g.Run = defaultCommandRunner
	}

	out := filepath.Join(filepath.Dir(videoPath), "thumbnail.jpg")
	execCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	if output, err := g.Run(execCtx, g.Binary, g.Args(videoPath, out)...); err != nil {
		logging.FromContext(ctx).Warn("ffmpeg frame extraction failed",
			slog.String("output", tail(output, 512)), slog.Any("error", err))
		return Ref{}, fmt.Errorf("%w: extract frame: %w", ErrThumbnail, err)
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		return Ref{}, fmt.Errorf("%w: ffmpeg produced no frame", ErrThumbnail)
	}

	return g.Publish(ctx, out)
}

// Publish uploads an existing image, such as a client-supplied thumbnail.
func (g *Generator) Publish(ctx context.Context, path string) (Ref, error) {
	if g.Publisher == nil {
		return Ref{Path: path}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: open %s: %w", ErrThumbnail, path, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".jpg"
	}
	url, err := g.Publisher.Save(ctx, "thumbnails/"+uuid.NewString()+ext, contentType(ext), f)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: publish: %w", ErrThumbnail, err)
	}
	return Ref{Path: path, URL: url}, nil
}

// Args renders the ffmpeg command line for extracting one scaled frame.
func (g *Generator) Args(videoPath, out string) []string {
	scale := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		g.Width, g.Height, g.Width, g.Height)
	return ffmpeg.Input(videoPath, ffmpeg.KwArgs{"ss": g.Offset}).
		Output(out, ffmpeg.KwArgs{"vframes": 1, "vf": scale, "q:v": 2}).
		OverWriteOutput().
		GetArgs()
}

func contentType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

func tail(out []byte, n int) string {
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}
