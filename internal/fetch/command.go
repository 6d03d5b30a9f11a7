// Package fetch downloads audio by running an external downloader such as yt-dlp.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tunequeue/tunequeue/internal/config"
	"github.com/tunequeue/tunequeue/internal/worker"
)

// MinFileSize is the smallest download accepted as real audio.
const MinFileSize = 1024

// outputTemplate names files after the track title, capped in bytes.
const outputTemplate = "%(title).200B.%(ext)s"

// stderrTail bounds how much downloader output is kept for error messages.
const stderrTail = 512

var (
	ErrNoOutput = errors.New("downloader produced no file")
	ErrTooSmall = errors.New("downloaded file too small")
)

var videoID = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// ResolveURL turns a bare 11-character video id into a watch URL. Anything
// else is returned unchanged.
func ResolveURL(resource string) string {
	resource = strings.TrimSpace(resource)
	if videoID.MatchString(resource) {
		return "https://www.youtube.com/watch?v=" + resource
	}
	return resource
}

// Command fetches resources by running a downloader process in a fresh
// scratch directory. The downloader must support yt-dlp's -o and
// --print after_move: flags.
type Command struct {
	cfg config.FetchConfig
}

func NewCommand(cfg config.FetchConfig) *Command {
	return &Command{cfg: cfg}
}

// Fetch runs the downloader. On success the returned artifact owns its Dir.
// On failure nothing is left on disk.
func (c *Command) Fetch(ctx context.Context, resource string) (art worker.Artifact, err error) {
	url := ResolveURL(resource)
	if url == "" {
		return worker.Artifact{}, errors.New("empty resource")
	}

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "tunequeue-")
	if err != nil {
		return worker.Artifact{}, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	args := append([]string{}, c.cfg.Args...)
	args = append(args,
		"-o", filepath.Join(dir, outputTemplate),
		"--print", "after_move:title",
		"--print", "after_move:filepath",
		"--", url,
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return worker.Artifact{}, fmt.Errorf("running %s: %w", c.cfg.Command, ctx.Err())
		}
		return worker.Artifact{}, fmt.Errorf("running %s: %w: %s", c.cfg.Command, err, tail(stderr.String()))
	}

	title, path := parseOutput(stdout.String())
	if path == "" {
		path = newestFile(dir)
	}
	if path == "" {
		return worker.Artifact{}, ErrNoOutput
	}

	info, err := os.Stat(path)
	if err != nil {
		return worker.Artifact{}, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	if info.Size() < MinFileSize {
		return worker.Artifact{}, fmt.Errorf("%w: %d bytes", ErrTooSmall, info.Size())
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	slog.Debug("fetch: downloaded", "url", url, "title", title, "bytes", info.Size(), "elapsed", time.Since(start))
	return worker.Artifact{Path: path, Title: title, Dir: dir}, nil
}

// parseOutput reads the two --print lines. Title comes first, path last.
func parseOutput(out string) (title, path string) {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	switch len(lines) {
	case 0:
		return "", ""
	case 1:
		return "", lines[0]
	default:
		return lines[len(lines)-2], lines[len(lines)-1]
	}
}

func newestFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = filepath.Join(dir, e.Name()), info.ModTime()
		}
	}
	return newest
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return "..." + s[len(s)-stderrTail:]
	}
	return s
}
