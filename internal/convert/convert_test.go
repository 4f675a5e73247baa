package convert

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/snarg/speechloop/internal/wavfile"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
// The script sees the same argv and writes to its last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor a; do out=\"$a\"; done\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArgs(t *testing.T) {
	c := New("", 16000, 1, 0)
	got := strings.Join(c.Args("sample.mp3", "sample.wav"), " ")
	want := "-y -i sample.mp3 -ar 16000 -ac 1 sample.wav"
	if got != want {
		t.Errorf("Args = %q, want %q", got, want)
	}
	if c.Path != "ffmpeg" {
		t.Errorf("default Path = %q", c.Path)
	}
}

func TestConvert_FakeBinary(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp3")
	out := filepath.Join(dir, "out.wav")
	os.WriteFile(in, []byte("ID3"), 0o644)

	t.Run("success", func(t *testing.T) {
		c := New(fakeFFmpeg(t, `printf converted > "$out"`), 16000, 1, 0)
		if err := c.Convert(context.Background(), in, out); err != nil {
			t.Fatalf("Convert: %v", err)
		}
		data, _ := os.ReadFile(out)
		if string(data) != "converted" {
			t.Errorf("output = %q", data)
		}
	})

	t.Run("nonzero_exit", func(t *testing.T) {
		c := New(fakeFFmpeg(t, `printf partial > "$out"; echo "Invalid data found when processing input" >&2; exit 3`), 16000, 1, 0)
		err := c.Convert(context.Background(), in, out)
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("err = %v, want *ExitError", err)
		}
		if exitErr.Code != 3 {
			t.Errorf("Code = %d, want 3", exitErr.Code)
		}
		if !strings.Contains(exitErr.Stderr, "Invalid data") {
			t.Errorf("Stderr = %q", exitErr.Stderr)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Error("partial output not removed")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := New(fakeFFmpeg(t, `exec sleep 5`), 16000, 1, 50*time.Millisecond)
		err := c.Convert(context.Background(), in, out)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})

	t.Run("missing_input", func(t *testing.T) {
		c := New(fakeFFmpeg(t, "exit 0"), 16000, 1, 0)
		if err := c.Convert(context.Background(), filepath.Join(dir, "none.mp3"), out); err == nil {
			t.Error("expected error for missing input")
		}
	})
}

func TestCheck_NotFound(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "no-ffmpeg"), 16000, 1, 0)
	if _, err := c.Check(); err == nil {
		t.Error("expected error for missing binary")
	}
	if err := c.Convert(context.Background(), "a", "b"); err == nil {
		t.Error("Convert should fail when binary is missing")
	}
}

func TestConvert_RealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "stereo.wav")
	out := filepath.Join(dir, "mono.wav")

	// One second of 8 kHz stereo silence.
	if err := wavfile.WritePCM16(in, 8000, 2, make([]int, 16000)); err != nil {
		t.Fatal(err)
	}

	c := New("ffmpeg", 16000, 1, time.Minute)
	if err := c.Convert(context.Background(), in, out); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	hdr, err := wavfile.Info(out)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if hdr.SampleRate != 16000 || hdr.Channels != 1 || hdr.BitDepth != 16 {
		t.Errorf("header = %+v, want 16000 Hz mono 16-bit", hdr)
	}

	// Running twice overwrites (-y).
	if err := c.Convert(context.Background(), in, out); err != nil {
		t.Errorf("second Convert: %v", err)
	}
}
