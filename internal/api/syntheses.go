package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/convert"
	"github.com/snarg/speechloop/internal/speechgen"
	"github.com/snarg/speechloop/internal/storage"
	"github.com/snarg/speechloop/internal/tts"
)

// maxSynthesisChars bounds the text of one synthesis request.
const maxSynthesisChars = 5000

type SynthesesHandler struct {
	synth     tts.Synthesizer
	converter *convert.Converter
	language  string
	rateLimit int // requests per IP per minute, 0 = unlimited
	log       zerolog.Logger
}

func (h *SynthesesHandler) Routes(r chi.Router) {
	if h.rateLimit > 0 {
		r = r.With(httprate.LimitByIP(h.rateLimit, time.Minute))
	}
	r.Post("/syntheses", h.Create)
}

// SynthesisRequest is the body of POST /syntheses.
type SynthesisRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Repeat   int    `json:"repeat,omitempty"`
}

// Create handles POST /api/v1/syntheses. The response body is the converted WAV.
func (h *SynthesesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SynthesisRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Repeat < 1 {
		req.Repeat = 1
	}
	if runes := utf8.RuneCountInString(req.Text); runes > maxSynthesisChars || req.Repeat > maxSynthesisChars/runes {
		WriteError(w, http.StatusRequestEntityTooLarge, "text too long: "+strconv.Itoa(runes)+" characters x "+strconv.Itoa(req.Repeat)+" > "+strconv.Itoa(maxSynthesisChars))
		return
	}
	if req.Language == "" {
		req.Language = h.language
	}

	dir, err := os.MkdirTemp("", "synth-*")
	if err != nil {
		h.log.Error().Err(err).Msg("create temp dir failed")
		WriteError(w, http.StatusInternalServerError, "synthesis failed")
		return
	}
	defer os.RemoveAll(dir)

	job := &speechgen.Job{
		Text:      req.Text,
		Repeat:    req.Repeat,
		Language:  req.Language,
		MP3Key:    "speech.mp3",
		WAVKey:    "speech.wav",
		Synth:     h.synth,
		Converter: h.converter,
		Store:     storage.NewLocalStore(dir),
		Log:       h.log,
	}
	res, err := job.Run(r.Context())
	if err != nil {
		var exitErr *convert.ExitError
		switch {
		case errors.As(err, &exitErr):
			h.log.Error().Err(err).Int("exit_code", exitErr.Code).Msg("conversion failed")
			WriteError(w, http.StatusInternalServerError, "conversion failed")
		case errors.Is(err, tts.ErrEmptyText):
			WriteError(w, http.StatusBadRequest, "text is required")
		default:
			h.log.Error().Err(err).Msg("synthesis failed")
			WriteErrorDetail(w, http.StatusBadGateway, "synthesis failed", err.Error())
		}
		return
	}

	f, err := os.Open(res.WAVPath)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "synthesis failed")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", storage.ContentTypeFromExt(".wav"))
	if fi, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	}
	w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(res.WAV.Duration().Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
