package vosk

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/transcribe"
	"github.com/snarg/speechloop/internal/wavfile"
)

// loadModel loads the model named by VOSK_MODEL_PATH or skips the test.
func loadModel(t *testing.T) *Model {
	t.Helper()
	path := os.Getenv("VOSK_MODEL_PATH")
	if path == "" {
		t.Skip("VOSK_MODEL_PATH not set")
	}
	SetQuiet(true)
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing model")
	}
	file := filepath.Join(t.TempDir(), "model.zip")
	os.WriteFile(file, []byte("PK"), 0o644)
	if _, err := Load(file); err == nil {
		t.Error("expected error for non-directory model")
	}

	// Unpacked one level too deep: the model files sit in a subdirectory.
	nested := t.TempDir()
	os.MkdirAll(filepath.Join(nested, "vosk-model-small-en-us-0.15", "am"), 0o755)
	for _, dir := range []string{t.TempDir(), nested} {
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), "not a Vosk model directory") {
			t.Errorf("Load(%s) err = %v, want not a Vosk model directory", dir, err)
		}
	}

	partial := t.TempDir()
	os.MkdirAll(filepath.Join(partial, "am"), 0o755)
	os.WriteFile(filepath.Join(partial, "am", "final.mdl"), []byte("x"), 0o644)
	if _, err := Load(partial); err == nil || !strings.Contains(err.Error(), "model.conf") {
		t.Errorf("err = %v, want missing conf/model.conf", err)
	}
}

func TestSilence(t *testing.T) {
	m := loadModel(t)
	p := transcribe.NewOfflineProvider("vosk", m.Name(), m, 0, zerolog.Nop())

	// Three seconds of silence plus a partial final chunk.
	path := filepath.Join(t.TempDir(), "silence.wav")
	if err := wavfile.WritePCM16(path, 16000, 1, make([]int, 48000+1234)); err != nil {
		t.Fatal(err)
	}

	res, err := p.Transcribe(context.Background(), path, transcribe.TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "" {
		t.Errorf("silence transcribed as %q", res.Text)
	}
}

func TestSpokenPhrase(t *testing.T) {
	m := loadModel(t)
	wav := os.Getenv("VOSK_TEST_WAV")
	if wav == "" {
		t.Skip("VOSK_TEST_WAV not set")
	}
	p := transcribe.NewOfflineProvider("vosk", m.Name(), m, 0, zerolog.Nop())

	first, err := p.Transcribe(context.Background(), wav, transcribe.TranscribeOpts{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(strings.Fields(first.Text)) == 0 {
		t.Fatal("empty transcript for spoken audio")
	}

	second, err := p.Transcribe(context.Background(), wav, transcribe.TranscribeOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Text != first.Text {
		t.Errorf("not idempotent:\n first: %q\nsecond: %q", first.Text, second.Text)
	}
}
