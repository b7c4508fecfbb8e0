package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Keys      APIKeys
	Ai        AIConfig
	Speech    SpeechConfig
	Interview InterviewConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	SpeechToText string
	TextToSpeech string
	// SessionSecret signs the short-lived speech credentials.
	SessionSecret string
}

type AIConfig struct {
	// DecisionProvider backs the fast per-turn classifier.
	DecisionProvider string // "gemini" or "ollama"
	DecisionModel    string
	// ResponseProvider backs the streamed candidate-facing utterances.
	ResponseProvider  string
	ResponseModel     string
	EmbeddingProvider string // "gemini" or "ollama"
	OllamaBaseURL     string
	OllamaModel       string
}

type SpeechConfig struct {
	SttURL             string
	TtsURL             string
	TtsVoice           string
	TtsModel           string
	VadThreshold       float64
	PrefixPaddingMs    int
	SilenceDurationMs  int
	MaxReconnPerMinute int
	MaxReconnLifetime  int
}

type InterviewConfig struct {
	// SessionTTL is the fixed cache expiry, refreshed on every write.
	SessionTTL time.Duration
	// Duration is the wall-clock budget; WarningBefore fires time_warning
	// that long before expiry.
	Duration      time.Duration
	WarningBefore time.Duration
	// EndGraceDelay is how long a completed session stays readable before
	// it is invalidated.
	EndGraceDelay time.Duration
	// SummaryTopic is the post-processing job topic.
	SummaryTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini:  getEnv("GOOGLE_GEMINI_API_KEY", ""),
			SpeechToText:  getEnv("STT_API_KEY", ""),
			TextToSpeech:  getEnv("TTS_API_KEY", ""),
			SessionSecret: getEnv("SESSION_SECRET", "dev-secret-change-me"),
		},
		Ai: AIConfig{
			DecisionProvider:  getEnv("DECISION_PROVIDER", "gemini"),
			DecisionModel:     getEnv("DECISION_MODEL", "gemini-2.0-flash"),
			ResponseProvider:  getEnv("RESPONSE_PROVIDER", "gemini"),
			ResponseModel:     getEnv("RESPONSE_MODEL", "gemini-2.0-flash"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_MODEL", "llama3"),
		},
		Speech: SpeechConfig{
			SttURL:             getEnv("STT_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
			TtsURL:             getEnv("TTS_STREAM_URL", "https://api.openai.com/v1/audio/speech"),
			TtsVoice:           getEnv("TTS_VOICE", "alloy"),
			TtsModel:           getEnv("TTS_MODEL", "tts-1"),
			VadThreshold:       getEnvAsFloat("VAD_THRESHOLD", 0.5),
			PrefixPaddingMs:    getEnvAsInt("VAD_PREFIX_PADDING_MS", 300),
			SilenceDurationMs:  getEnvAsInt("VAD_SILENCE_DURATION_MS", 200),
			MaxReconnPerMinute: getEnvAsInt("STT_MAX_RECONNECTS_PER_MINUTE", 3),
			MaxReconnLifetime:  getEnvAsInt("STT_MAX_RECONNECTS_LIFETIME", 10),
		},
		Interview: InterviewConfig{
			SessionTTL:    getEnvAsDuration("SESSION_TTL", 2*time.Hour),
			Duration:      getEnvAsDuration("INTERVIEW_DURATION", 45*time.Minute),
			WarningBefore: getEnvAsDuration("INTERVIEW_WARNING_BEFORE", 5*time.Minute),
			EndGraceDelay: getEnvAsDuration("SESSION_END_GRACE_DELAY", 30*time.Second),
			SummaryTopic:  getEnv("INTERVIEW_SUMMARY_TOPIC", "INTERVIEW_SUMMARY"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
