// Package wavfile reads and writes RIFF/WAVE containers holding integer PCM.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when a file lacks a valid RIFF/WAVE header.
var ErrNotWAV = errors.New("wavfile: not a valid WAV file")

// pcmFormat is the WAVE format tag for integer PCM.
const pcmFormat = 1

// Header describes a WAV file's audio format.
type Header struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Format     int // WAVE format tag, 1 = PCM
	Frames     int64
}

// Duration returns the playback length.
func (h Header) Duration() time.Duration {
	if h.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(h.Frames) / float64(h.SampleRate) * float64(time.Second))
}

// IsPCM reports whether samples are integer PCM.
func (h Header) IsPCM() bool { return h.Format == pcmFormat }

// Reader streams raw PCM frames from a WAV file.
type Reader struct {
	f          *os.File
	dec        *wav.Decoder
	hdr        Header
	blockAlign int
	remaining  int64 // bytes left in the data chunk; -1 = read to EOF
}

// Open parses the header of path and positions the reader at the first frame.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: seek to pcm data: %w", path, err)
	}

	r := &Reader{
		f:   f,
		dec: dec,
		hdr: Header{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   int(dec.BitDepth),
			Format:     int(dec.WavAudioFormat),
		},
		remaining: int64(dec.PCMSize),
	}
	r.blockAlign = r.hdr.Channels * ((r.hdr.BitDepth + 7) / 8)
	if r.blockAlign <= 0 {
		f.Close()
		return nil, fmt.Errorf("%s: invalid block alignment (channels=%d bits=%d): %w",
			path, r.hdr.Channels, r.hdr.BitDepth, ErrNotWAV)
	}
	if r.remaining <= 0 {
		// Streamed writers leave the data size unset; fall back to EOF.
		r.remaining = -1
	} else {
		r.hdr.Frames = r.remaining / int64(r.blockAlign)
	}
	return r, nil
}

// Header returns the parsed format.
func (r *Reader) Header() Header { return r.hdr }

// ReadFrames returns up to n frames of raw little-endian PCM. A zero-length
// slice with a nil error means the stream has ended.
func (r *Reader) ReadFrames(n int) ([]byte, error) {
	if n <= 0 || r.remaining == 0 {
		return nil, nil
	}
	want := int64(n) * int64(r.blockAlign)
	if r.remaining > 0 && want > r.remaining {
		want = r.remaining
	}
	buf := make([]byte, want)
	got, err := io.ReadFull(r.dec.PCMChunk, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if r.remaining > 0 {
		r.remaining -= int64(got)
	}
	if got < len(buf) {
		// Short read: the file ends before the header says it should.
		r.remaining = 0
	}
	got -= got % r.blockAlign
	return buf[:got], nil
}

// Close releases the file.
func (r *Reader) Close() error { return r.f.Close() }

// Info reads only the header of path.
func Info(path string) (Header, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	return r.Header(), nil
}

// WritePCM16 writes 16-bit PCM samples (interleaved when channels > 1) to path.
func WritePCM16(path string, sampleRate, channels int, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, channels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize header: %w", err)
	}
	return f.Close()
}
