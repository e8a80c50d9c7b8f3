package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/api/handlers"
	"github.com/yoockh/rehearse/internal/api/middleware"
	"github.com/yoockh/rehearse/internal/api/routes"
	"github.com/yoockh/rehearse/internal/audio"
	"github.com/yoockh/rehearse/internal/cache"
	"github.com/yoockh/rehearse/internal/logger"
	"github.com/yoockh/rehearse/internal/models"
	"github.com/yoockh/rehearse/internal/observe"
	"github.com/yoockh/rehearse/internal/providers/llm"
	"github.com/yoockh/rehearse/internal/providers/mlclient"
	"github.com/yoockh/rehearse/internal/providers/stt"
	"github.com/yoockh/rehearse/internal/providers/tts"
	"github.com/yoockh/rehearse/internal/realtime"
	mongorepo "github.com/yoockh/rehearse/internal/repositories/mongo"
	pgrepo "github.com/yoockh/rehearse/internal/repositories/postgres"
	"github.com/yoockh/rehearse/internal/services"
	"github.com/yoockh/rehearse/internal/storage"
	"github.com/yoockh/rehearse/internal/workers"
)

const providerTimeout = 30 * time.Second

// App holds everything the commands share. Build it with New and release
// it with Close.
type App struct {
	Settings *config.Settings
	Log      *logrus.Logger
	Observe  *observe.Provider

	Mongo    *mongo.Client
	MongoDB  *mongo.Database
	Postgres *gorm.DB
	Redis    *redis.Client
	Store    storage.ArtifactStore

	Sessions      services.SessionService
	Feedback      services.FeedbackService
	Profiles      services.ProfileService
	Conversations services.ConversationService
	Buffers       services.BufferService

	Hub *realtime.Hub

	closers []func() error
}

// New connects the data stores and builds the service graph. Providers
// without credentials are left out of their fallback chains.
func New(ctx context.Context, s *config.Settings) (*App, error) {
	a := &App{Settings: s, Log: logger.New(s.LogLevel)}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	s := a.Settings

	prov, err := observe.InitProvider()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	a.Observe = prov
	a.closers = append(a.closers, func() error { return prov.Shutdown(context.Background()) })
	met := prov.Metrics

	if a.Mongo, err = config.NewMongo(ctx, s.MongoURI); err != nil {
		return fmt.Errorf("mongo: %w", err)
	}
	a.closers = append(a.closers, func() error { return a.Mongo.Disconnect(context.Background()) })
	a.MongoDB = a.Mongo.Database(s.MongoDB)
	a.Log.Info("MongoDB connected")

	if a.Postgres, err = config.NewPostgres(s.PostgresURI); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if sqlDB, err := a.Postgres.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	a.Log.Info("PostgreSQL connected")

	if target := s.RedisTarget(); target != "" {
		if a.Redis, err = config.NewRedis(ctx, target); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis.Close)
		a.Log.Info("Redis connected")
	}

	var c cache.Cache
	if a.Redis != nil {
		c = cache.NewRedisCache(a.Redis)
	} else {
		c = cache.NewMemoryCache()
	}

	if a.Store, err = a.artifactStore(ctx); err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	scenarios, err := services.LoadScenarios()
	if err != nil {
		return fmt.Errorf("scenarios: %w", err)
	}

	sessionRepo := mongorepo.NewSessionRepo(a.MongoDB)
	a.Buffers = services.NewBufferService(mongorepo.NewChunkRepo(a.MongoDB), s.ChunkTTL)
	a.Conversations = services.NewConversationService(pgrepo.NewConversationRepo(a.Postgres))
	a.Profiles = services.NewProfileService(pgrepo.NewProfileRepo(a.Postgres), c, s.ProfileCacheTTL, a.Log)
	a.Feedback = services.NewFeedbackService(sessionRepo)

	turns := services.NewTurnService(scenarios, a.dialogueProviders(ctx), a.Log, met)
	audioSvc := services.NewAudioService(
		audio.NewConverter(s.FFmpegPath),
		a.recognizers(ctx),
		a.voice(),
		a.Store,
		a.Log,
		met,
	)

	// untyped nils keep the scoring interfaces nil when a URL is unset
	var features services.FeatureExtractor
	if s.PerceptionURL != "" {
		features = mlclient.NewFeatureClient(s.PerceptionURL, s.MLHTTPTimeout)
	}
	var scorer services.SkillScorer
	if s.ScoringURL != "" {
		scorer = mlclient.NewScoringClient(s.ScoringURL, s.MLHTTPTimeout)
	}
	scoring := services.NewScoringService(features, scorer, s.AnalysisTimeout, a.Log, met)

	a.Sessions = services.NewSessionService(services.SessionDeps{
		Sessions:      sessionRepo,
		Turns:         turns,
		Audio:         audioSvc,
		Scoring:       scoring,
		Profiles:      a.Profiles,
		Conversations: a.Conversations,
		Buffers:       a.Buffers,
		Cache:         c,
		Log:           a.Log,
		Metrics:       met,
	})

	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}
	a.Hub = realtime.NewHub(realtime.NewRoomRegistry(), a.Buffers, dispatcher, a.Log, met,
		realtime.WithAllowedOrigins(s.WSAllowedOrigins...),
		realtime.WithTurnTimeout(s.TurnTimeout),
	)
	return nil
}

func (a *App) artifactStore(ctx context.Context) (storage.ArtifactStore, error) {
	switch a.Settings.ArtifactBackend {
	case "", "local":
		return storage.NewLocalStore(a.Settings.ArtifactDir)
	case "gcs":
		if a.Settings.GCSBucket == "" {
			return nil, errors.New("GCS_BUCKET is required for the gcs backend")
		}
		return storage.NewGCSStore(ctx, a.Settings.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown ARTIFACT_BACKEND %q", a.Settings.ArtifactBackend)
	}
}

// dialogueProviders lists OpenAI before Gemini; the scripted ladder is
// appended by the turn service.
func (a *App) dialogueProviders(ctx context.Context) []llm.Provider {
	s := a.Settings
	var out []llm.Provider
	if s.OpenAIAPIKey != "" {
		p, err := llm.NewOpenAIChat(s.OpenAIAPIKey, s.OpenAIChatModel, "", providerTimeout)
		if err != nil {
			a.Log.WithError(err).Warn("openai chat disabled")
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
		}
	}
	if s.GCPProject != "" {
		p, err := llm.NewVertexGemini(ctx, s.GCPProject, s.GCPLocation, s.GeminiModel)
		if err != nil {
			a.Log.WithError(err).Warn("vertex gemini disabled")
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
		}
	}
	return out
}

func (a *App) recognizers(ctx context.Context) []stt.Provider {
	s := a.Settings
	var out []stt.Provider
	if s.OpenAIAPIKey != "" {
		p, err := stt.NewOpenAIWhisper(s.OpenAIAPIKey, s.OpenAISTTModel, "", providerTimeout)
		if err != nil {
			a.Log.WithError(err).Warn("whisper transcription disabled")
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
		}
	}
	if s.GoogleSpeechEnabled {
		p, err := stt.NewGoogleSpeech(ctx)
		if err != nil {
			a.Log.WithError(err).Warn("google speech disabled")
		} else {
			out = append(out, p)
			a.closers = append(a.closers, p.Close)
		}
	}
	return out
}

func (a *App) voice() tts.Provider {
	s := a.Settings
	if s.OpenAIAPIKey == "" {
		return nil
	}
	p, err := tts.NewOpenAISpeech(s.OpenAIAPIKey, s.OpenAITTSModel, s.OpenAITTSVoice, "", providerTimeout)
	if err != nil {
		a.Log.WithError(err).Warn("speech synthesis disabled")
		return nil
	}
	a.closers = append(a.closers, p.Close)
	return p
}

func (a *App) dispatcher() (realtime.TurnDispatcher, error) {
	switch a.Settings.TurnDispatch {
	case "", "inline":
		return realtime.InlineDispatcher{Process: a.ProcessTurn, Log: a.Log}, nil
	case "redis":
		if a.Redis == nil {
			return nil, errors.New("TURN_DISPATCH=redis requires REDIS_ADDR or REDIS_URL")
		}
		return &workers.StreamDispatcher{
			Redis:   a.Redis,
			Stream:  workers.DefaultStream,
			MaxLen:  10000,
			Timeout: a.Settings.TurnTimeout,
			Log:     a.Log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown TURN_DISPATCH %q", a.Settings.TurnDispatch)
	}
}

// ProcessTurn adapts the session service to the dispatcher and worker
// signature.
func (a *App) ProcessTurn(ctx context.Context, req realtime.TurnRequest, emit realtime.Emitter) error {
	_, err := a.Sessions.ProcessAudioTurn(ctx, req, emit)
	return err
}

// WorkerPool consumes the turn stream. It needs Redis.
func (a *App) WorkerPool() (*workers.TurnWorkerPool, error) {
	if a.Redis == nil {
		return nil, errors.New("turn workers require REDIS_ADDR or REDIS_URL")
	}
	return &workers.TurnWorkerPool{
		Redis:      a.Redis,
		Process:    a.ProcessTurn,
		NumWorkers: a.Settings.WorkerCount,
		Timeout:    a.Settings.TurnTimeout,
		Logger:     a.Log,
	}, nil
}

// Router builds the gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(a.Log, a.Observe.Metrics))

	routes.RegisterRoutes(r, routes.Deps{
		Auth:         a.Settings.Auth,
		Session:      handlers.NewSessionHandler(a.Sessions),
		Feedback:     handlers.NewFeedbackHandler(a.Feedback),
		Profile:      handlers.NewProfileHandler(a.Profiles),
		Conversation: handlers.NewConversationHandler(a.Conversations),
		Artifact:     handlers.NewArtifactHandler(a.Sessions, a.Store),
		WS:           handlers.NewWSHandler(a.Hub),
		Admin:        handlers.NewAdminHandler(a.Hub.Rooms()),
		Metrics:      a.Observe.Handler,
	})
	return r
}

// HTTPServer wraps Router with the listen address from the settings.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + a.Settings.Port,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Migrate creates the Postgres tables and the Mongo indexes.
func (a *App) Migrate(ctx context.Context) error {
	if err := config.MigratePostgres(a.Postgres, &models.BehavioralProfile{}, &models.ConversationLog{}); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	if err := config.EnsureMongoIndexes(ctx, a.MongoDB); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
