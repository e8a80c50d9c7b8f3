package app

import (
	"context"
	"testing"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/logger"
	"github.com/yoockh/rehearse/internal/realtime"
	"github.com/yoockh/rehearse/internal/storage"
)

func bare(s config.Settings) *App {
	return &App{Settings: &s, Log: logger.Discard()}
}

func TestDispatcherSelection(t *testing.T) {
	d, err := bare(config.Settings{TurnDispatch: "inline"}).dispatcher()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(realtime.InlineDispatcher); !ok {
		t.Fatalf("dispatcher = %T", d)
	}

	if _, err := bare(config.Settings{TurnDispatch: "redis"}).dispatcher(); err == nil {
		t.Fatal("redis dispatch without a client should fail")
	}
	if _, err := bare(config.Settings{TurnDispatch: "carrier-pigeon"}).dispatcher(); err == nil {
		t.Fatal("unknown dispatch mode should fail")
	}
}

func TestWorkerPoolNeedsRedis(t *testing.T) {
	if _, err := bare(config.Settings{}).WorkerPool(); err == nil {
		t.Fatal("expected error without redis")
	}
}

func TestArtifactStoreSelection(t *testing.T) {
	ctx := context.Background()

	st, err := bare(config.Settings{ArtifactBackend: "local", ArtifactDir: t.TempDir()}).artifactStore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(*storage.LocalStore); !ok {
		t.Fatalf("store = %T", st)
	}

	if _, err := bare(config.Settings{ArtifactBackend: "gcs"}).artifactStore(ctx); err == nil {
		t.Fatal("gcs without a bucket should fail")
	}
	if _, err := bare(config.Settings{ArtifactBackend: "s3"}).artifactStore(ctx); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestProvidersSkippedWithoutCredentials(t *testing.T) {
	a := bare(config.Settings{})
	if got := a.dialogueProviders(context.Background()); len(got) != 0 {
		t.Fatalf("dialogue providers = %d", len(got))
	}
	if got := a.recognizers(context.Background()); len(got) != 0 {
		t.Fatalf("recognizers = %d", len(got))
	}
	if a.voice() != nil {
		t.Fatal("voice should be nil without a key")
	}
}
