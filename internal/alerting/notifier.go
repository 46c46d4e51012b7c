package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"payment-sentinel/internal/trend"
)

// Notification carries the context of one escalated decision.
type Notification struct {
	WindowStart    time.Time
	Segment        string
	FinalAction    string
	Signal         trend.Signal
	Severity       string
	FailureRate    float64
	AffectedCount  int
	NetBenefit     decimal.Decimal
	OverrideReason string
	Justification  string
	Channels       []string
}

// SeverityFor maps the temporal signal onto an operator-facing severity.
func SeverityFor(signal trend.Signal) string {
	switch signal {
	case trend.SignalSpike:
		return "HIGH"
	case trend.SignalDeclining:
		return "LOW"
	default:
		return "MEDIUM"
	}
}

// Notifier defines the alert dispatch interface.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram dispatcher.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("segment", note.Segment).
		Str("action", note.FinalAction).
		Str("severity", note.Severity).
		Msg("alert dispatched (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[SENTINEL %s] %s\n", note.Severity, note.FinalAction))
	builder.WriteString(fmt.Sprintf("Segment: %s\n", note.Segment))
	builder.WriteString(fmt.Sprintf("Window: %s UTC\n", note.WindowStart.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Failure rate: %.1f%% across %d transactions\n", note.FailureRate*100, note.AffectedCount))
	builder.WriteString(fmt.Sprintf("Temporal signal: %s\n", note.Signal))
	builder.WriteString(fmt.Sprintf("Net benefit: %s\n", note.NetBenefit.StringFixed(2)))
	if note.OverrideReason != "" {
		builder.WriteString(fmt.Sprintf("Override: %s\n", note.OverrideReason))
	}
	if note.Justification != "" {
		builder.WriteString(note.Justification)
		builder.WriteString("\n")
	}
	if len(note.Channels) > 0 {
		builder.WriteString(fmt.Sprintf("Channels: %s\n", strings.Join(note.Channels, ",")))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
