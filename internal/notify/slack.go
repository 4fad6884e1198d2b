package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thermawatch/agent/pkg/types"
)

// Slack posts alerts to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	client     *http.Client
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Fallback  string       `json:"fallback,omitempty"`
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
	Short bool   `json:"short,omitempty"`
}

// NewSlack builds a Slack notifier for the given webhook.
func NewSlack(webhookURL, channel string) (*Slack, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL cannot be empty")
	}
	return &Slack{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, ev types.AlertEvent) error {
	msg := slackMessage{
		Channel:     s.channel,
		Username:    "ThermaWatch",
		IconEmoji:   ":thermometer:",
		Attachments: []slackAttachment{buildAttachment(ev)},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack webhook status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func buildAttachment(ev types.AlertEvent) slackAttachment {
	if ev.Kind == types.AlertRecovery {
		return slackAttachment{
			Fallback:  ev.Message,
			Color:     "good",
			Title:     fmt.Sprintf("%s recovered", ev.Device),
			Text:      ev.Message,
			Timestamp: ev.Timestamp.Unix(),
		}
	}
	return slackAttachment{
		Fallback:  ev.Message,
		Color:     "danger",
		Title:     fmt.Sprintf("%s over threshold", ev.Device),
		Text:      ev.Message,
		Timestamp: ev.Timestamp.Unix(),
		Fields: []slackField{
			{Title: "Reading", Value: types.FormatCelsius(ev.Reading) + "°C", Short: true},
			{Title: "Threshold", Value: types.FormatCelsius(ev.Threshold) + "°C", Short: true},
		},
	}
}
