package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

const (
	googleTTSEndpoint = "https://translate.google.com/translate_tts"

	// maxTokenChars is the longest text the translate_tts endpoint accepts per request.
	maxTokenChars = 100
)

// GoogleClient synthesizes speech through Google Translate's public TTS
// endpoint, the same backend gTTS uses. Long text is split into tokens and
// the returned MP3 segments are concatenated in order.
// Implements the Synthesizer interface.
type GoogleClient struct {
	baseURL string
	slow    bool
	client  *http.Client
	log     zerolog.Logger
}

// NewGoogleClient creates a Google TTS client. An empty baseURL selects the
// public endpoint.
func NewGoogleClient(baseURL string, slow bool, timeout time.Duration, log zerolog.Logger) *GoogleClient {
	if baseURL == "" {
		baseURL = googleTTSEndpoint
	}
	return &GoogleClient{
		baseURL: baseURL,
		slow:    slow,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "tts-google").Logger(),
	}
}

// Name returns the provider name.
func (g *GoogleClient) Name() string { return "google" }

// Synthesize requests every token of text and returns the concatenated MP3 stream.
func (g *GoogleClient) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	tokens := Tokenize(text, maxTokenChars)
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}
	if lang == "" {
		lang = "en"
	}

	g.log.Debug().
		Int("chars", len([]rune(text))).
		Int("requests", len(tokens)).
		Str("lang", lang).
		Msg("synthesizing")

	var out bytes.Buffer
	for i, tok := range tokens {
		data, err := g.fetch(ctx, tok, lang, i, len(tokens))
		if err != nil {
			return nil, fmt.Errorf("token %d/%d: %w", i+1, len(tokens), err)
		}
		out.Write(data)
	}
	return out.Bytes(), nil
}

func (g *GoogleClient) fetch(ctx context.Context, token, lang string, idx, total int) ([]byte, error) {
	speed := "1"
	if g.slow {
		speed = "0.3"
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", token)
	q.Set("tl", lang)
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", speed)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(token))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("Referer", "http://translate.google.com/")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google tts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google tts error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("google tts returned no audio")
	}
	return body, nil
}

// Tokenize splits text into chunks of at most max runes. Cuts prefer the end
// of a sentence, then a comma, then any whitespace; a word longer than max is
// cut hard. Whitespace runs are collapsed and empty chunks dropped.
func Tokenize(text string, max int) []string {
	if max < 1 {
		max = maxTokenChars
	}
	rest := []rune(strings.Join(strings.Fields(text), " "))
	var tokens []string
	for len(rest) > 0 {
		if len(rest) <= max {
			tokens = appendToken(tokens, rest)
			break
		}
		cut := cutIndex(rest, max)
		tokens = appendToken(tokens, rest[:cut])
		rest = rest[cut:]
	}
	return tokens
}

func appendToken(tokens []string, r []rune) []string {
	if s := strings.TrimSpace(string(r)); s != "" {
		return append(tokens, s)
	}
	return tokens
}

// cutIndex returns the exclusive end of the next chunk; 0 < cut <= max.
// Requires len(r) > max.
func cutIndex(r []rune, max int) int {
	spaceAfter := func(i int) bool { return i+1 < len(r) && unicode.IsSpace(r[i+1]) }

	for i := max - 1; i > 0; i-- {
		if strings.ContainsRune(".!?;:", r[i]) && spaceAfter(i) {
			return i + 1
		}
	}
	for i := max - 1; i > 0; i-- {
		if r[i] == ',' && spaceAfter(i) {
			return i + 1
		}
	}
	for i := max; i > 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return max
}
