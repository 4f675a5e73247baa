package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultChunkFrames is how many frames are fed to the decoder per call.
const DefaultChunkFrames = 4000

// ErrRecognizerFault is returned when the decoder rejects a chunk.
var ErrRecognizerFault = errors.New("recognizer fault")

// Recognizer is a stateful streaming decoder. AcceptWaveform returns 1 when
// an utterance boundary was reached and Result holds a finished utterance,
// 0 to keep feeding, and a negative value on a decoder exception.
type Recognizer interface {
	AcceptWaveform(data []byte) int
	Result() string
	FinalResult() string
	Free()
}

// Model builds recognizers. A Model may be shared; each Recognizer is used
// by one goroutine at a time.
type Model interface {
	NewRecognizer(sampleRate float64) (Recognizer, error)
	Close()
}

// FrameSource yields raw PCM frames. A zero-length read ends the stream.
type FrameSource interface {
	ReadFrames(n int) ([]byte, error)
}

// result is the subset of the decoder's JSON output that is consumed.
type result struct {
	Text string `json:"text"`
}

// Decode feeds src to rec chunkFrames at a time, collecting the text of every
// completed utterance and of the final result. Empty texts are skipped, so
// silence decodes to no fragments.
func Decode(ctx context.Context, rec Recognizer, src FrameSource, chunkFrames int) ([]string, int, error) {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}

	var fragments []string
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, chunks, err
		}
		data, err := src.ReadFrames(chunkFrames)
		if err != nil {
			return nil, chunks, err
		}
		if len(data) == 0 {
			break
		}
		chunks++
		switch rc := rec.AcceptWaveform(data); {
		case rc < 0:
			return nil, chunks, fmt.Errorf("chunk %d: %w (code %d)", chunks, ErrRecognizerFault, rc)
		case rc > 0:
			text, err := parseText(rec.Result())
			if err != nil {
				return nil, chunks, err
			}
			fragments = appendText(fragments, text)
		}
	}

	text, err := parseText(rec.FinalResult())
	if err != nil {
		return nil, chunks, err
	}
	return appendText(fragments, text), chunks, nil
}

// Join concatenates fragments with single spaces.
func Join(fragments []string) string {
	return strings.Join(fragments, " ")
}

func parseText(raw string) (string, error) {
	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("decode recognizer result %q: %w", raw, err)
	}
	return strings.TrimSpace(r.Text), nil
}

func appendText(fragments []string, text string) []string {
	if text == "" {
		return fragments
	}
	return append(fragments, text)
}
