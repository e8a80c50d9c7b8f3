package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings is the process configuration read from the environment (and an
// optional .env file).
type Settings struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	MongoURI    string `envconfig:"MONGO_URI"`
	MongoDB     string `envconfig:"MONGO_DB" default:"rehearse"`
	PostgresURI string `envconfig:"POSTGRES_URI"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RedisURL    string `envconfig:"REDIS_URL"`

	Auth

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIChatModel string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	OpenAISTTModel  string `envconfig:"OPENAI_STT_MODEL" default:"whisper-1"`
	OpenAITTSModel  string `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice  string `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`

	GCPProject          string `envconfig:"GCP_PROJECT"`
	GCPLocation         string `envconfig:"GCP_LOCATION" default:"us-central1"`
	GeminiModel         string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`
	GoogleSpeechEnabled bool   `envconfig:"GOOGLE_SPEECH_ENABLED" default:"false"`

	PerceptionURL   string        `envconfig:"PERCEPTION_URL" default:"http://localhost:8001"`
	ScoringURL      string        `envconfig:"SCORING_URL" default:"http://localhost:8002"`
	MLHTTPTimeout   time.Duration `envconfig:"ML_HTTP_TIMEOUT" default:"15s"`
	AnalysisTimeout time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"90s"`

	ArtifactBackend string `envconfig:"ARTIFACT_BACKEND" default:"local"`
	ArtifactDir     string `envconfig:"ARTIFACT_DIR" default:"./data"`
	GCSBucket       string `envconfig:"GCS_BUCKET"`
	FFmpegPath      string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`

	TurnDispatch    string        `envconfig:"TURN_DISPATCH" default:"inline"`
	WorkerCount     int           `envconfig:"WORKER_COUNT" default:"5"`
	ChunkTTL        time.Duration `envconfig:"CHUNK_TTL" default:"24h"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"10m"`
	TurnTimeout     time.Duration `envconfig:"TURN_TIMEOUT" default:"90s"`

	// WSAllowedOrigins empty accepts any origin.
	WSAllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`
}

// Auth holds the bearer-token verification settings.
type Auth struct {
	JWTSecret   string `envconfig:"SUPABASE_JWT_SECRET"`
	JWTIssuer   string `envconfig:"SUPABASE_JWT_ISSUER"`
	JWTAudience string `envconfig:"SUPABASE_JWT_AUDIENCE"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RedisTarget returns whichever redis address variable is set.
func (s *Settings) RedisTarget() string {
	if s.RedisAddr != "" {
		return s.RedisAddr
	}
	return s.RedisURL
}
