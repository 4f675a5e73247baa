package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/speechloop/internal/database"
	"github.com/snarg/speechloop/internal/transcribe"
	"github.com/snarg/speechloop/internal/wavfile"
)

// maxUploadBytes bounds a single uploaded WAV.
const maxUploadBytes = 200 << 20

// Transcriber runs one transcription job synchronously.
// Satisfied by *transcribe.WorkerPool.
type Transcriber interface {
	Process(ctx context.Context, job transcribe.Job) (*transcribe.Result, error)
}

// TranscriptLister reads transcript history. Satisfied by *database.DB.
type TranscriptLister interface {
	ListTranscripts(ctx context.Context, limit, offset int) ([]database.TranscriptAPI, int, error)
}

type TranscriptionsHandler struct {
	transcriber Transcriber
	history     TranscriptLister // nil = no database
	language    string
	log         zerolog.Logger
}

func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Post("/transcriptions", h.Create)
	r.Get("/transcriptions", h.List)
}

// TranscriptionResponse is returned by POST /transcriptions.
type TranscriptionResponse struct {
	JobID           string   `json:"job_id"`
	Filename        string   `json:"filename"`
	Text            string   `json:"text"`
	Fragments       []string `json:"fragments"`
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	AudioDurationMs int64    `json:"audio_duration_ms"`
	ElapsedMs       int64    `json:"elapsed_ms"`
}

// Create handles POST /api/v1/transcriptions.
// Accepts a multipart upload with the WAV in the "file" field.
func (h *TranscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "upload-*.wav")
	if err != nil {
		h.log.Error().Err(err).Msg("create temp file failed")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	lang := r.FormValue("language")
	if lang == "" {
		lang = h.language
	}

	res, err := h.transcriber.Process(r.Context(), transcribe.Job{
		AudioPath: tmp.Name(),
		Source:    "api",
		Language:  lang,
	})
	if err != nil {
		switch {
		case errors.Is(err, wavfile.ErrNotWAV):
			WriteErrorDetail(w, http.StatusBadRequest, "file is not a WAV", err.Error())
		case errors.Is(err, transcribe.ErrUnsupportedFormat):
			WriteErrorDetail(w, http.StatusUnsupportedMediaType, "unsupported audio format", transcribe.ErrUnsupportedFormat.Error())
		default:
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("transcription failed")
			WriteError(w, http.StatusInternalServerError, "transcription failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, TranscriptionResponse{
		JobID:           res.JobID,
		Filename:        filepath.Base(header.Filename),
		Text:            res.Text,
		Fragments:       res.Fragments,
		Provider:        res.Provider,
		Model:           res.Model,
		AudioDurationMs: res.Duration.Milliseconds(),
		ElapsedMs:       res.Elapsed.Milliseconds(),
	})
}

// List handles GET /api/v1/transcriptions.
func (h *TranscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteError(w, http.StatusServiceUnavailable, "transcript history requires DATABASE_URL")
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, total, err := h.history.ListTranscripts(r.Context(), p.Limit, p.Offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list transcripts failed")
		WriteError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if rows == nil {
		rows = []database.TranscriptAPI{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcripts": rows,
		"total":       total,
		"limit":       p.Limit,
		"offset":      p.Offset,
	})
}
