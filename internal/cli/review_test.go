package cli

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sprite-ai/revroom/internal/api"
	"github.com/sprite-ai/revroom/internal/config"
	"github.com/sprite-ai/revroom/internal/presence"
	"github.com/sprite-ai/revroom/internal/session"
)

func TestStartPresenceJoinsRoom(t *testing.T) {
	srv := httptest.NewServer(api.New(config.Default().Server, nil).Handler())
	defer srv.Close()

	cfg := config.PresenceConfig{URL: srv.URL, Username: "ana", JoinTimeout: 5 * time.Second}
	client, pub, err := startPresence(context.Background(), cfg, "octo/widgets#7", presence.ClientConfig{})
	if err != nil {
		t.Fatalf("startPresence: %v", err)
	}
	defer client.Close()

	if client.State() != presence.StateJoined {
		t.Errorf("expected joined, got %s", client.State())
	}
	if pub != client {
		t.Error("expected the joined client to publish session events")
	}
}

func TestStartPresenceFallsBackOffline(t *testing.T) {
	srv := httptest.NewServer(api.New(config.Default().Server, nil).Handler())
	url := srv.URL
	srv.Close()

	cfg := config.PresenceConfig{URL: url, Username: "ana", JoinTimeout: time.Second}
	client, pub, err := startPresence(context.Background(), cfg, "octo/widgets#7", presence.ClientConfig{})
	if err == nil {
		t.Fatal("expected join to fail against a closed server")
	}
	if client != nil {
		t.Error("expected no client after a failed join")
	}
	if _, ok := pub.(session.NopPublisher); !ok {
		t.Errorf("expected NopPublisher after a failed join, got %T", pub)
	}
}
