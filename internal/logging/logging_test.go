package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log := New("debug", "json", &buf)
		log.Debug().Str("component", "test").Msg("hello")

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("not JSON: %q", buf.String())
		}
		if line["message"] != "hello" || line["component"] != "test" || line["level"] != "debug" {
			t.Errorf("line = %v", line)
		}
		if _, ok := line["time"]; !ok {
			t.Error("missing timestamp")
		}
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		log := New("info", "console", &buf)
		log.Info().Msg("hello")
		if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
			t.Errorf("console output = %q", buf.String())
		}
	})

	t.Run("level_filters", func(t *testing.T) {
		var buf bytes.Buffer
		log := New("warn", "json", &buf)
		log.Info().Msg("dropped")
		if buf.Len() != 0 {
			t.Errorf("info logged at warn level: %q", buf.String())
		}
	})

	t.Run("bad_level_defaults_to_info", func(t *testing.T) {
		var buf bytes.Buffer
		log := New("loud", "json", &buf)
		log.Debug().Msg("dropped")
		log.Info().Msg("kept")
		if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
			t.Errorf("output = %q", buf.String())
		}
	})
}
