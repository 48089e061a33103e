package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers best-effort alerts: Slack webhook if configured, else
// Discord webhook, else a console simulation. First 2xx wins. It never
// reports failure to the caller; there is no delivery guarantee.
type Notifier struct {
	SlackURL   string
	DiscordURL string
	Client     *http.Client
	Log        zerolog.Logger
}

func New(slackURL, discordURL string, log zerolog.Logger) *Notifier {
	return &Notifier{
		SlackURL:   slackURL,
		DiscordURL: discordURL,
		Client:     &http.Client{Timeout: 5 * time.Second},
		Log:        log.With().Str("component", "notify").Logger(),
	}
}

func (n *Notifier) Notify(title, message string) {
	text := fmt.Sprintf("**%s**\n%s", title, message)

	if n.SlackURL != "" && n.post(n.SlackURL, map[string]string{"text": text}) {
		n.Log.Info().Str("channel", "slack").Str("title", title).Msg("notification sent")
		return
	}
	if n.DiscordURL != "" && n.post(n.DiscordURL, map[string]string{"content": text}) {
		n.Log.Info().Str("channel", "discord").Str("title", title).Msg("notification sent")
		return
	}
	n.Log.Info().Str("title", title).Str("message", message).Msg("notification simulated (no webhook delivered)")
}

func (n *Notifier) post(url string, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	resp, err := n.Client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.Log.Warn().Err(err).Msg("webhook post failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.Log.Warn().Int("status", resp.StatusCode).Msg("webhook rejected notification")
		return false
	}
	return true
}
