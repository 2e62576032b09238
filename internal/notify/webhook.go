package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// Webhook posts a fire-and-forget notification whenever a relayed message
// lands in one of the configured targets. Failures are logged and never
// block or fail the send pipeline.
type Webhook struct {
	url     string
	targets map[string]bool
	client  *http.Client
}

// event is the POST body.
type event struct {
	TargetChatID int64  `json:"target_chat_id"`
	TopicID      int    `json:"topic_id,omitempty"`
	MessageID    int    `json:"message_id"`
	Text         string `json:"text,omitempty"`
	SentAt       string `json:"sent_at"`
}

// New creates a Webhook notifier, or nil when no URL is configured —
// callers treat a nil notifier as disabled.
func New(cfg config.WebhookConfig) *Webhook {
	if cfg.URL == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	targets := make(map[string]bool, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets[t] = true
	}
	return &Webhook{
		url:     cfg.URL,
		targets: targets,
		client:  &http.Client{Timeout: timeout},
	}
}

// Delivered notifies about one successful delivery if the target is in the
// allow-set. An empty allow-set notifies for every target. The POST runs in
// its own goroutine; the send pipeline never waits on it.
func (w *Webhook) Delivered(ctx context.Context, targetChat int64, topicID, messageID int, text string) {
	if len(w.targets) > 0 {
		if !w.targets[config.TargetKey(targetChat, topicID)] && !w.targets[config.TargetKey(targetChat, 0)] {
			return
		}
	}

	body, err := json.Marshal(event{
		TargetChatID: targetChat,
		TopicID:      topicID,
		MessageID:    messageID,
		Text:         text,
		SentAt:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Warn("webhook payload marshal failed", "error", err)
		return
	}

	go func() {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			slog.Warn("webhook request build failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			slog.Warn("webhook delivery failed", "url", w.url, "error", err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			slog.Warn("webhook rejected", "url", w.url, "status", resp.StatusCode)
		}
	}()
}
