// Package vosk binds the Vosk offline recognizer (libvosk via cgo) to the
// transcribe.Model interface.
package vosk

import (
	"fmt"
	"os"
	"path/filepath"

	vosklib "github.com/alphacep/vosk-api/go"
	"github.com/snarg/speechloop/internal/transcribe"
)

// Model is a loaded Vosk acoustic model. It is safe to share between
// goroutines; recognizers are not.
type Model struct {
	path  string
	model *vosklib.VoskModel
}

// SetQuiet silences Kaldi's stderr logging.
func SetQuiet(quiet bool) {
	if quiet {
		vosklib.SetLogLevel(-1)
	} else {
		vosklib.SetLogLevel(0)
	}
}

// requiredFiles must exist in a model directory. libvosk returns a nil
// model rather than an error when they are missing.
var requiredFiles = []string{
	filepath.Join("am", "final.mdl"),
	filepath.Join("conf", "model.conf"),
}

// Load reads the model directory at path.
func Load(path string) (*Model, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("vosk model: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("vosk model: %s is not a directory", path)
	}
	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return nil, fmt.Errorf("vosk model %s: not a Vosk model directory (missing %s)", path, name)
		}
	}
	m, err := vosklib.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("vosk model %s: %w", path, err)
	}
	return &Model{path: path, model: m}, nil
}

// Name returns the model directory's base name, e.g. "vosk-model-small-en-us-0.15".
func (m *Model) Name() string { return filepath.Base(filepath.Clean(m.path)) }

// NewRecognizer creates a decoder for audio at sampleRate Hz.
func (m *Model) NewRecognizer(sampleRate float64) (transcribe.Recognizer, error) {
	if m.model == nil {
		return nil, fmt.Errorf("vosk model %s: closed", m.Name())
	}
	rec, err := vosklib.NewRecognizer(m.model, sampleRate)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Close frees the native model.
func (m *Model) Close() {
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
}
