// Package convert resamples and remixes audio files with an external ffmpeg binary.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// stderrTail is how much of ffmpeg's stderr is kept in an ExitError.
const stderrTail = 2048

// Converter invokes ffmpeg to produce a copy of an audio file at a fixed
// sample rate and channel count.
type Converter struct {
	Path       string // executable name (PATH lookup) or absolute path
	SampleRate int
	Channels   int
	Timeout    time.Duration // 0 = no deadline beyond ctx

	mu       sync.Mutex
	resolved string
}

// ExitError reports a converter run that exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with status %d", e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// New creates a Converter.
func New(path string, sampleRate, channels int, timeout time.Duration) *Converter {
	if path == "" {
		path = "ffmpeg"
	}
	return &Converter{Path: path, SampleRate: sampleRate, Channels: channels, Timeout: timeout}
}

// Check resolves the executable. Call once at startup; Convert calls it lazily.
func (c *Converter) Check() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved != "" {
		return c.resolved, nil
	}
	p, err := exec.LookPath(c.Path)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found at %q: %w", c.Path, err)
	}
	c.resolved = p
	return p, nil
}

// Args returns the argument vector for converting in to out.
func (c *Converter) Args(in, out string) []string {
	return []string{
		"-y",
		"-i", in,
		"-ar", strconv.Itoa(c.SampleRate),
		"-ac", strconv.Itoa(c.Channels),
		out,
	}
}

// Convert runs ffmpeg and blocks until it exits. A non-zero exit status is
// returned as *ExitError and any partial output is removed.
func (c *Converter) Convert(ctx context.Context, in, out string) error {
	bin, err := c.Check()
	if err != nil {
		return err
	}
	if _, err := os.Stat(in); err != nil {
		return fmt.Errorf("convert input: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, c.Args(in, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Stderr: tail(stderr.String(), stderrTail)}
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
