package transcribe

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/wavfile"
)

// scriptRecognizer reports an utterance boundary after every `every` chunks,
// returning the next word of words. FinalResult returns final.
type scriptRecognizer struct {
	every  int
	words  []string
	final  string
	chunks int
	bytes  int
	freed  bool
	raw    string // overrides Result when set
}

func (r *scriptRecognizer) AcceptWaveform(data []byte) int {
	r.chunks++
	r.bytes += len(data)
	if r.every > 0 && r.chunks%r.every == 0 {
		return 1
	}
	return 0
}

func (r *scriptRecognizer) Result() string {
	if r.raw != "" {
		return r.raw
	}
	if len(r.words) == 0 {
		return `{"text" : ""}`
	}
	w := r.words[0]
	r.words = r.words[1:]
	return fmt.Sprintf(`{"text" : %q}`, w)
}

func (r *scriptRecognizer) FinalResult() string { return fmt.Sprintf(`{"text" : %q}`, r.final) }
func (r *scriptRecognizer) Free()               { r.freed = true }

// sliceSource yields frames from an in-memory buffer of 16-bit mono PCM.
type sliceSource struct {
	data  []byte
	sizes []int
}

func (s *sliceSource) ReadFrames(n int) ([]byte, error) {
	want := n * 2
	if want > len(s.data) {
		want = len(s.data)
	}
	out := s.data[:want]
	s.data = s.data[want:]
	s.sizes = append(s.sizes, len(out))
	return out, nil
}

type errSource struct{}

func (errSource) ReadFrames(int) ([]byte, error) { return nil, errors.New("disk gone") }

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frames    int
		rec       *scriptRecognizer
		wantText  string
		wantSizes []int
	}{
		{
			name:      "silence",
			frames:    12000,
			rec:       &scriptRecognizer{every: 2},
			wantText:  "",
			wantSizes: []int{8000, 8000, 8000, 0},
		},
		{
			name:      "partial_last_chunk",
			frames:    10000,
			rec:       &scriptRecognizer{final: "world"},
			wantText:  "world",
			wantSizes: []int{8000, 8000, 4000, 0},
		},
		{
			name:      "boundaries_then_final",
			frames:    16000,
			rec:       &scriptRecognizer{every: 2, words: []string{"hello", "there"}, final: "world"},
			wantText:  "hello there world",
			wantSizes: []int{8000, 8000, 8000, 8000, 0},
		},
		{
			name:      "empty_final_dropped",
			frames:    8000,
			rec:       &scriptRecognizer{every: 2, words: []string{"  hello  "}},
			wantText:  "hello",
			wantSizes: []int{8000, 8000, 0},
		},
		{
			name:      "no_audio",
			frames:    0,
			rec:       &scriptRecognizer{final: ""},
			wantText:  "",
			wantSizes: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &sliceSource{data: make([]byte, tt.frames*2)}
			frags, chunks, err := Decode(context.Background(), tt.rec, src, DefaultChunkFrames)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := Join(frags); got != tt.wantText {
				t.Errorf("text = %q, want %q", got, tt.wantText)
			}
			if fmt.Sprint(src.sizes) != fmt.Sprint(tt.wantSizes) {
				t.Errorf("read sizes = %v, want %v", src.sizes, tt.wantSizes)
			}
			if chunks != len(tt.wantSizes)-1 {
				t.Errorf("chunks = %d, want %d", chunks, len(tt.wantSizes)-1)
			}
			if tt.rec.bytes != tt.frames*2 {
				t.Errorf("recognizer saw %d bytes, want %d", tt.rec.bytes, tt.frames*2)
			}
			for _, f := range frags {
				if f == "" || strings.TrimSpace(f) != f {
					t.Errorf("fragment %q not trimmed", f)
				}
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Run("bad_json", func(t *testing.T) {
		rec := &scriptRecognizer{every: 1, raw: "not json"}
		_, _, err := Decode(context.Background(), rec, &sliceSource{data: make([]byte, 8000)}, 4000)
		if err == nil {
			t.Error("expected error for malformed result")
		}
	})

	t.Run("recognizer_fault", func(t *testing.T) {
		rec := &faultRecognizer{}
		frags, chunks, err := Decode(context.Background(), rec, &sliceSource{data: make([]byte, 16000)}, 4000)
		if !errors.Is(err, ErrRecognizerFault) {
			t.Fatalf("err = %v, want ErrRecognizerFault", err)
		}
		if frags != nil || chunks != 1 {
			t.Errorf("fragments = %q, chunks = %d", frags, chunks)
		}
		if rec.results != 0 {
			t.Errorf("Result called %d times after a fault", rec.results)
		}
	})

	t.Run("read_error", func(t *testing.T) {
		_, _, err := Decode(context.Background(), &scriptRecognizer{}, errSource{}, 4000)
		if err == nil || !strings.Contains(err.Error(), "disk gone") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := Decode(ctx, &scriptRecognizer{}, &sliceSource{data: make([]byte, 8000)}, 4000)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestJoin(t *testing.T) {
	if got := Join(nil); got != "" {
		t.Errorf("Join(nil) = %q", got)
	}
	if got := Join([]string{"a", "b c"}); got != "a b c" {
		t.Errorf("Join = %q", got)
	}
}

// faultRecognizer reports a decoder exception on every chunk.
type faultRecognizer struct{ results int }

func (r *faultRecognizer) AcceptWaveform([]byte) int { return -1 }
func (r *faultRecognizer) Result() string {
	r.results++
	return `{"text" : "bogus"}`
}
func (r *faultRecognizer) FinalResult() string { return `{"text" : "bogus"}` }
func (r *faultRecognizer) Free() {}

// fakeModel hands out fresh scriptRecognizers and records the rates asked for.
type fakeModel struct {
	rates []float64
	recs  []*scriptRecognizer
	words []string
	final string
}

func (m *fakeModel) NewRecognizer(rate float64) (Recognizer, error) {
	m.rates = append(m.rates, rate)
	rec := &scriptRecognizer{every: 2, words: append([]string(nil), m.words...), final: m.final}
	m.recs = append(m.recs, rec)
	return rec, nil
}

func (m *fakeModel) Close() {}

func writeWAV(t *testing.T, rate, channels, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := wavfile.WritePCM16(path, rate, channels, make([]int, frames*channels)); err != nil {
		t.Fatalf("WritePCM16: %v", err)
	}
	return path
}

func TestOfflineProvider_Transcribe(t *testing.T) {
	model := &fakeModel{words: []string{"hello"}, final: "world"}
	p := NewOfflineProvider("vosk", "test-model", model, 0, zerolog.Nop())
	path := writeWAV(t, 16000, 1, 16000)

	first, err := p.Transcribe(context.Background(), path, TranscribeOpts{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if first.Text != "hello world" {
		t.Errorf("Text = %q", first.Text)
	}
	if first.Chunks != 4 {
		t.Errorf("Chunks = %d, want 4", first.Chunks)
	}
	if first.Duration.Seconds() != 1 {
		t.Errorf("Duration = %v, want 1s", first.Duration)
	}
	if model.rates[0] != 16000 {
		t.Errorf("recognizer rate = %v", model.rates[0])
	}
	if !model.recs[0].freed {
		t.Error("recognizer not freed")
	}

	// A fresh recognizer per call gives the same result.
	second, err := p.Transcribe(context.Background(), path, TranscribeOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Text != first.Text {
		t.Errorf("second run = %q, first = %q", second.Text, first.Text)
	}
	if p.Name() != "vosk" || p.Model() != "test-model" {
		t.Errorf("Name/Model = %s/%s", p.Name(), p.Model())
	}
}

func TestOfflineProvider_FileRate(t *testing.T) {
	model := &fakeModel{}
	p := NewOfflineProvider("vosk", "m", model, 4000, zerolog.Nop())
	if _, err := p.Transcribe(context.Background(), writeWAV(t, 8000, 1, 100), TranscribeOpts{}); err != nil {
		t.Fatal(err)
	}
	if model.rates[0] != 8000 {
		t.Errorf("recognizer rate = %v, want file rate 8000", model.rates[0])
	}
}

func TestOfflineProvider_Rejects(t *testing.T) {
	p := NewOfflineProvider("vosk", "m", &fakeModel{}, 0, zerolog.Nop())

	t.Run("stereo", func(t *testing.T) {
		_, err := p.Transcribe(context.Background(), writeWAV(t, 16000, 2, 100), TranscribeOpts{})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := p.Transcribe(context.Background(), filepath.Join(t.TempDir(), "none.wav"), TranscribeOpts{})
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}
