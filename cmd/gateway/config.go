package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hubenschmidt/whisper-gateway/internal/env"
)

type config struct {
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	MaxConnections  int    `yaml:"max_connections"`
	MaxMessageBytes int64  `yaml:"max_message_bytes"`

	SampleRate     int           `yaml:"sample_rate"`
	FlushThreshold time.Duration `yaml:"flush_threshold"`
	Carryover      time.Duration `yaml:"carryover"`

	BeamSize              int           `yaml:"beam_size"`
	VADFilter             bool          `yaml:"vad_filter"`
	SilenceThresholdDB    float64       `yaml:"silence_threshold_db"`
	TranscribeConcurrency int           `yaml:"transcribe_concurrency"`
	TranscribeTimeout     time.Duration `yaml:"transcribe_timeout"`
	ArtifactDir           string        `yaml:"artifact_dir"`
	ArtifactFormat        string        `yaml:"artifact_format"`

	DefaultEngine       string `yaml:"default_engine"`
	WhisperServerURL    string `yaml:"whisper_server_url"`
	WhisperPoolSize     int    `yaml:"whisper_pool_size"`
	OpenAIAPIKey        string `yaml:"openai_api_key"`
	OpenAIBaseURL       string `yaml:"openai_base_url"`
	OpenAIModel         string `yaml:"openai_model"`
	GoogleSpeechEnabled bool   `yaml:"google_speech_enabled"`
	GoogleLanguage      string `yaml:"google_speech_language"`
	StubEngine          bool   `yaml:"stub_engine"`

	TraceDBURL        string   `yaml:"trace_db_url"`
	KafkaBrokers      []string `yaml:"kafka_brokers"`
	KafkaTopicPartial string   `yaml:"kafka_topic_partial"`
	KafkaTopicFinal   string   `yaml:"kafka_topic_final"`
	KafkaTopicFile    string   `yaml:"kafka_topic_file"`
}

func defaultConfig() config {
	return config{
		Port:                  "8000",
		LogLevel:              "info",
		LogFormat:             "json",
		MaxConnections:        100,
		MaxMessageBytes:       50 << 20,
		SampleRate:            16000,
		FlushThreshold:        3 * time.Second,
		Carryover:             time.Second,
		BeamSize:              5,
		VADFilter:             true,
		TranscribeConcurrency: 1,
		ArtifactFormat:        "wav",
		WhisperPoolSize:       8,
		OpenAIModel:           "whisper-1",
		GoogleLanguage:        "en-US",
	}
}

// loadConfig layers CONFIG_FILE (if set) over the defaults, then environment
// variables over both.
func loadConfig() (config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.validate()
}

func (c *config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *config) applyEnv() {
	c.Port = env.Str("GATEWAY_PORT", c.Port)
	c.LogLevel = env.Str("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.Str("LOG_FORMAT", c.LogFormat)
	c.MaxConnections = env.Int("MAX_CONNECTIONS", c.MaxConnections)
	c.MaxMessageBytes = int64(env.Int("MAX_MESSAGE_BYTES", int(c.MaxMessageBytes)))

	c.SampleRate = env.Int("SAMPLE_RATE", c.SampleRate)
	c.FlushThreshold = env.Duration("FLUSH_THRESHOLD", c.FlushThreshold)
	c.Carryover = env.Duration("CARRYOVER", c.Carryover)

	c.BeamSize = env.Int("BEAM_SIZE", c.BeamSize)
	c.VADFilter = env.Bool("VAD_FILTER", c.VADFilter)
	c.SilenceThresholdDB = env.Float("SILENCE_THRESHOLD_DB", c.SilenceThresholdDB)
	c.TranscribeConcurrency = env.Int("TRANSCRIBE_CONCURRENCY", c.TranscribeConcurrency)
	c.TranscribeTimeout = env.Duration("TRANSCRIBE_TIMEOUT", c.TranscribeTimeout)
	c.ArtifactDir = env.Str("ARTIFACT_DIR", c.ArtifactDir)
	c.ArtifactFormat = strings.ToLower(env.Str("ARTIFACT_FORMAT", c.ArtifactFormat))

	c.DefaultEngine = env.Str("DEFAULT_ENGINE", c.DefaultEngine)
	c.WhisperServerURL = env.Str("WHISPER_SERVER_URL", c.WhisperServerURL)
	c.WhisperPoolSize = env.Int("WHISPER_POOL_SIZE", c.WhisperPoolSize)
	c.OpenAIAPIKey = env.Str("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = env.Str("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = env.Str("OPENAI_MODEL", c.OpenAIModel)
	c.GoogleSpeechEnabled = env.Bool("GOOGLE_SPEECH_ENABLED", c.GoogleSpeechEnabled)
	c.GoogleLanguage = env.Str("GOOGLE_SPEECH_LANGUAGE", c.GoogleLanguage)
	c.StubEngine = env.Bool("STUB_ENGINE", c.StubEngine)

	c.TraceDBURL = env.Str("TRACE_DB_URL", c.TraceDBURL)
	c.KafkaBrokers = env.List("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopicPartial = env.Str("KAFKA_TOPIC_PARTIAL", c.KafkaTopicPartial)
	c.KafkaTopicFinal = env.Str("KAFKA_TOPIC_FINAL", c.KafkaTopicFinal)
	c.KafkaTopicFile = env.Str("KAFKA_TOPIC_FILE", c.KafkaTopicFile)
}

func (c config) validate() error {
	switch {
	case c.MaxConnections < 1:
		return fmt.Errorf("max_connections must be at least 1, got %d", c.MaxConnections)
	case c.MaxMessageBytes < 1024:
		return fmt.Errorf("max_message_bytes must be at least 1024, got %d", c.MaxMessageBytes)
	case c.SampleRate < 8000 || c.SampleRate > 192000:
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", c.SampleRate)
	case c.FlushThreshold <= 0:
		return fmt.Errorf("flush_threshold must be positive, got %s", c.FlushThreshold)
	case c.Carryover < 0 || c.Carryover >= c.FlushThreshold:
		return fmt.Errorf("carryover (%s) must be non-negative and below flush_threshold (%s)", c.Carryover, c.FlushThreshold)
	case c.BeamSize < 1:
		return fmt.Errorf("beam_size must be at least 1, got %d", c.BeamSize)
	case c.TranscribeConcurrency < 1:
		return fmt.Errorf("transcribe_concurrency must be at least 1, got %d", c.TranscribeConcurrency)
	case c.TranscribeTimeout < 0:
		return fmt.Errorf("transcribe_timeout must not be negative, got %s", c.TranscribeTimeout)
	case c.ArtifactFormat != "wav" && c.ArtifactFormat != "flac":
		return fmt.Errorf("artifact_format must be wav or flac, got %q", c.ArtifactFormat)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
