package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TranscriptRow is the input for inserting a transcript.
type TranscriptRow struct {
	JobID           string // uuid
	Source          string // "batch", "watch", "api"
	AudioPath       string
	Text            string
	Fragments       []string
	Language        string
	Provider        string
	Model           string
	AudioDurationMs int
	ElapsedMs       int
}

// TranscriptAPI is the transcript representation for API responses.
type TranscriptAPI struct {
	ID              int64     `json:"id"`
	JobID           string    `json:"job_id"`
	Source          string    `json:"source"`
	AudioPath       string    `json:"audio_path"`
	Text            string    `json:"text"`
	Fragments       []string  `json:"fragments"`
	Language        string    `json:"language,omitempty"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	AudioDurationMs int       `json:"audio_duration_ms"`
	ElapsedMs       int       `json:"elapsed_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// InsertTranscript stores a transcript and returns its id.
func (db *DB) InsertTranscript(ctx context.Context, row *TranscriptRow) (int64, error) {
	fragments := row.Fragments
	if fragments == nil {
		fragments = []string{}
	}
	fragJSON, err := json.Marshal(fragments)
	if err != nil {
		return 0, fmt.Errorf("marshal fragments: %w", err)
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO transcripts (job_id, source, audio_path, text, fragments, language,
			provider, model, audio_duration_ms, elapsed_ms)
		VALUES ($1::uuid, $2, $3, $4, $5::jsonb, NULLIF($6, ''), $7, $8, $9, $10)
		RETURNING id`,
		row.JobID, row.Source, row.AudioPath, row.Text, string(fragJSON), row.Language,
		row.Provider, row.Model, row.AudioDurationMs, row.ElapsedMs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	return id, nil
}

// ListTranscripts returns the newest transcripts first, with the total count.
func (db *DB) ListTranscripts(ctx context.Context, limit, offset int) ([]TranscriptAPI, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM transcripts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcripts: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, job_id::text, source, audio_path, text, fragments::text, COALESCE(language, ''),
			provider, model, audio_duration_ms, elapsed_ms, created_at
		FROM transcripts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []TranscriptAPI
	for rows.Next() {
		var t TranscriptAPI
		var fragJSON string
		if err := rows.Scan(&t.ID, &t.JobID, &t.Source, &t.AudioPath, &t.Text, &fragJSON, &t.Language,
			&t.Provider, &t.Model, &t.AudioDurationMs, &t.ElapsedMs, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transcript: %w", err)
		}
		if err := json.Unmarshal([]byte(fragJSON), &t.Fragments); err != nil {
			return nil, 0, fmt.Errorf("decode fragments: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []TranscriptAPI{}
	}
	return out, total, nil
}
