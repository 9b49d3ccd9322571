package pub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"lunchbell/internal/types"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Slack posts to an incoming webhook. All slack subscribers share the webhook's room,
// so each message names its recipient.
type Slack struct {
	webhookURL string
	client     *http.Client
}

func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	return &Slack{webhookURL: webhookURL, client: &http.Client{Timeout: timeout}}
}

type slackMessage struct {
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, _ string, message string, extra types.Extra) error {
	b, err := json.Marshal(slackMessage{Text: chatText(message, extra)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// chatText renders the message for a shared chat room, with the menu appended.
func chatText(message string, extra types.Extra) string {
	text := message
	if extra.Recipient != "" {
		text = "@" + extra.Recipient + " " + text
	}
	if extra.Menu != "" {
		text += "\n\n*Today's menu*\n" + extra.Menu
	}
	return text
}
