// Package screenshot acquires page images for post attachments through an
// external capture command. Capture failures never propagate: a post is
// created without an image rather than blocked.
package screenshot

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Capturer produces a local image file for a URL. An empty result means
// capture was not possible.
type Capturer interface {
	Capture(url string) string
}

// CommandCapturer shells out to a configured capture command, invoked as
// `<cmd> <url> <output-file>`. Output files are keyed by a URL hash so
// repeated captures of the same page reuse the existing file.
type CommandCapturer struct {
	Command   string
	OutputDir string
	Timeout   time.Duration
}

var _ Capturer = (*CommandCapturer)(nil)

func NewCommandCapturer(command, outputDir string) *CommandCapturer {
	return &CommandCapturer{
		Command:   command,
		OutputDir: outputDir,
		Timeout:   60 * time.Second,
	}
}

func (c *CommandCapturer) Capture(url string) string {
	if url == "" || c.Command == "" {
		return ""
	}

	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		slog.Warn("Failed to create screenshot directory", "dir", c.OutputDir, "error", err)
		return ""
	}

	path := filepath.Join(c.OutputDir, cacheKey(url)+".png")
	if _, err := os.Stat(path); err == nil {
		slog.Debug("Reusing cached screenshot", "url", url, "path", path)
		return path
	}

	cmd := exec.Command(c.Command, url, path)
	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		slog.Warn("Failed to start screenshot command", "url", url, "error", err)
		return ""
	}
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("Screenshot command failed", "url", url, "error", err)
			return ""
		}
	case <-time.After(c.Timeout):
		cmd.Process.Kill()
		slog.Warn("Screenshot command timed out", "url", url, "timeout", c.Timeout)
		return ""
	}

	if _, err := os.Stat(path); err != nil {
		slog.Warn("Screenshot command produced no file", "url", url, "path", path)
		return ""
	}

	return path
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "screenshot_" + hex.EncodeToString(sum[:8])
}
