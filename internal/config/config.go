package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultSampleText is the utterance unit the synthesizer repeats.
const DefaultSampleText = "Hello, this is a generated speech for testing the transcription accuracy of Vosk. " +
	"This sentence is repeated multiple times for longer duration. "

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Synthesis
	SampleText   string        `env:"SAMPLE_TEXT"`
	SampleRepeat int           `env:"SAMPLE_REPEAT" envDefault:"60"`
	TTSProvider  string        `env:"TTS_PROVIDER" envDefault:"google"`
	TTSLanguage  string        `env:"TTS_LANGUAGE" envDefault:"en"`
	TTSBaseURL   string        `env:"TTS_BASE_URL"`
	TTSTimeout   time.Duration `env:"TTS_TIMEOUT" envDefault:"30s"`
	TTSSlow      bool          `env:"TTS_SLOW" envDefault:"false"`

	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAITTSModel string `env:"OPENAI_TTS_MODEL" envDefault:"tts-1"`
	OpenAITTSVoice string `env:"OPENAI_TTS_VOICE" envDefault:"alloy"`

	// Artifacts and conversion
	AudioDir         string        `env:"AUDIO_DIR" envDefault:"."`
	MP3Path          string        `env:"MP3_PATH" envDefault:"sample.mp3"`
	WAVPath          string        `env:"WAV_PATH" envDefault:"sample.wav"`
	FFmpegPath       string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	TargetSampleRate int           `env:"TARGET_SAMPLE_RATE" envDefault:"16000"`
	TargetChannels   int           `env:"TARGET_CHANNELS" envDefault:"1"`
	ConvertTimeout   time.Duration `env:"CONVERT_TIMEOUT" envDefault:"10m"`

	// Recognition
	VoskModelPath string `env:"VOSK_MODEL_PATH" envDefault:"vosk-model-small-en-us-0.15"`
	ChunkFrames   int    `env:"CHUNK_FRAMES" envDefault:"4000"`

	S3 S3Config `envPrefix:"S3_"`

	// Transcript sinks
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"speechloop"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"speechloop/transcripts"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`

	DatabaseURL    string `env:"DATABASE_URL"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`

	DBMaxConns       int32         `env:"DB_MAX_CONNS" envDefault:"4"`
	DBMinConns       int32         `env:"DB_MIN_CONNS" envDefault:"0"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`

	// Daemon
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	AuthToken    string        `env:"AUTH_TOKEN"`

	// SynthesisRateLimit caps POST /syntheses per client IP per minute; 0 = unlimited.
	SynthesisRateLimit int `env:"SYNTHESIS_RATE_LIMIT" envDefault:"30"`

	WatchDir          string `env:"WATCH_DIR"`
	TranscribeWorkers int    `env:"TRANSCRIBE_WORKERS" envDefault:"1"`
	TranscribeQueue   int    `env:"TRANSCRIBE_QUEUE_SIZE" envDefault:"64"`

	// TranscribeTimeout bounds one transcription job; 0 = no limit.
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"10m"`
}

// S3Config configures the optional S3 artifact mirror.
type S3Config struct {
	Bucket    string `env:"BUCKET"`
	Endpoint  string `env:"ENDPOINT"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Prefix    string `env:"PREFIX"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	LogLevel      string
	SampleText    string
	SampleRepeat  int
	TTSLanguage   string
	MP3Path       string
	WAVPath       string
	FFmpegPath    string
	VoskModelPath string
	ChunkFrames   int
	HTTPAddr      string
	WatchDir      string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.SampleText == "" {
		cfg.SampleText = DefaultSampleText
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.SampleText != "" {
		cfg.SampleText = overrides.SampleText
	}
	if overrides.SampleRepeat > 0 {
		cfg.SampleRepeat = overrides.SampleRepeat
	}
	if overrides.TTSLanguage != "" {
		cfg.TTSLanguage = overrides.TTSLanguage
	}
	if overrides.MP3Path != "" {
		cfg.MP3Path = overrides.MP3Path
	}
	if overrides.WAVPath != "" {
		cfg.WAVPath = overrides.WAVPath
	}
	if overrides.FFmpegPath != "" {
		cfg.FFmpegPath = overrides.FFmpegPath
	}
	if overrides.VoskModelPath != "" {
		cfg.VoskModelPath = overrides.VoskModelPath
	}
	if overrides.ChunkFrames > 0 {
		cfg.ChunkFrames = overrides.ChunkFrames
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the jobs cannot run with.
func (c *Config) Validate() error {
	if c.SampleRepeat < 1 {
		return fmt.Errorf("SAMPLE_REPEAT must be >= 1, got %d", c.SampleRepeat)
	}
	if c.TargetSampleRate < 1 {
		return fmt.Errorf("TARGET_SAMPLE_RATE must be >= 1, got %d", c.TargetSampleRate)
	}
	if c.TargetChannels < 1 {
		return fmt.Errorf("TARGET_CHANNELS must be >= 1, got %d", c.TargetChannels)
	}
	if c.ChunkFrames < 1 {
		return fmt.Errorf("CHUNK_FRAMES must be >= 1, got %d", c.ChunkFrames)
	}
	switch c.TTSProvider {
	case "google", "openai":
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q (want google or openai)", c.TTSProvider)
	}
	if c.TTSProvider == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("TTS_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if c.TranscribeWorkers < 1 {
		c.TranscribeWorkers = 1
	}
	if c.TranscribeQueue < 1 {
		c.TranscribeQueue = 1
	}
	return nil
}
