package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNotifySlackFirst(t *testing.T) {
	var slackBodies []string
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		slackBodies = append(slackBodies, string(b))
	}))
	defer slack.Close()
	discordHits := 0
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		discordHits++
	}))
	defer discord.Close()

	n := New(slack.URL, discord.URL, zerolog.Nop())
	n.Notify("Stock alert", "Product: Laptop. Requested: 20, available: 7.")

	if len(slackBodies) != 1 {
		t.Fatalf("slack posts = %d, want 1", len(slackBodies))
	}
	if discordHits != 0 {
		t.Fatalf("discord posts = %d, want 0 when slack succeeds", discordHits)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(slackBodies[0]), &payload); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payload["text"], "Stock alert") {
		t.Fatalf("payload text missing title: %q", payload["text"])
	}
}

func TestNotifyFallsBackToDiscord(t *testing.T) {
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slack.Close()
	var discordPayload map[string]string
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &discordPayload)
	}))
	defer discord.Close()

	n := New(slack.URL, discord.URL, zerolog.Nop())
	n.Notify("Stock alert", "restock needed")

	if discordPayload == nil {
		t.Fatal("discord webhook not hit after slack failure")
	}
	if !strings.Contains(discordPayload["content"], "restock needed") {
		t.Fatalf("discord content = %q", discordPayload["content"])
	}
}

func TestNotifyConsoleSimulationNeverFails(t *testing.T) {
	// No webhooks configured; must not panic or error.
	n := New("", "", zerolog.Nop())
	n.Notify("Stock alert", "simulated only")
}

func TestNotifyUnreachableWebhookSwallowed(t *testing.T) {
	n := New("http://127.0.0.1:1/unreachable", "", zerolog.Nop())
	n.Notify("Stock alert", "must not raise")
}
